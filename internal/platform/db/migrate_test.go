package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "postgres://u:p@localhost:5432/carsale?sslmode=disable", want: "pgx5://u:p@localhost:5432/carsale?sslmode=disable"},
		{in: "postgresql://u:p@db/carsale", want: "pgx5://u:p@db/carsale"},
		{in: "pgx5://already", want: "pgx5://already"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MigrateURL(tc.in), tc.in)
	}
}
