package main

import (
	"notifyme-backend/cmd/notifyme/cmd"

	_ "time/tzdata"
)

func main() {
	cmd.Execute()
}
