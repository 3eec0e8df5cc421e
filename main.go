package main

import "contextanalyzer/internal/app"

func main() {
	app.Main()
}
