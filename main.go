package main

import (
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/cmd"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
