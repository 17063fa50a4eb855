package main

import (
	_ "github.com/joho/godotenv/autoload" // Autoload .env file.

	"github.com/campus-loyalty/points-api/cmd/app"
)

// @title           Campus Loyalty Points API
// @version         1.0
// @description     Points ledger, events, promotions and raffles for campus members.
//
// @BasePath  /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token
func main() {
	if err := app.Start(); err != nil {
		panic(err)
	}
}
