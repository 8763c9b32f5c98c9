// Package env tells the bot whether it runs locally or in production.
package env

import "os"

type Environment string

const (
	Local      Environment = "local"
	Production Environment = "production"

	Key string = "ENV"
)

func (e Environment) Valid() bool {
	switch e {
	case Local, Production:
		return true
	}
	return false
}

// Parse returns the environment named by v, falling back to Local.
func Parse(v string) Environment {
	e := Environment(v)
	if !e.Valid() {
		return Local
	}
	return e
}

var Current = Parse(os.Getenv(Key))
