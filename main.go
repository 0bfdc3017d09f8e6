package main

import "feedbackbot/internal/app"

func main() {
	app.Main()
}
