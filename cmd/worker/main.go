package main

import (
	"medkit-service/app"
)

func main() {
	app.RunWorker()
}
