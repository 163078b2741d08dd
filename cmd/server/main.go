package main

import (
	"github.com/dwarvesf/paywall-backend/internal/server"
)

// @title Paywall API
// @version 1.0
// @description Issues stablecoin deposit addresses and grants access once a payment lands.
// @BasePath /api/v1
func main() {
	server.Init()
}
