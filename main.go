package main

import (
	"log"

	_ "esign-sync/docs"
	"esign-sync/internal/app"
)

// @title E-Signature Sync API
// @version 1.0
// @description Sends DocuSign envelopes for host records and keeps their status in sync.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
