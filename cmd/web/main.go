package main

import "commission_backend/internal/app"

func main() {
	app.Run()
}
