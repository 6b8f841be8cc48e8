package util

import (
	"os"
	"os/user"
)

func GetUser() string {
	if user, err := user.Current(); err == nil {
		return user.Username
	}
	return os.Getenv("USER")
}

func GetHomeDir() string {
	if user, err := user.Current(); err == nil && user.HomeDir != "" {
		return user.HomeDir
	}
	return os.Getenv("HOME")
}
