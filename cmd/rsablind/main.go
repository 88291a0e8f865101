package main

import (
	"github.com/ipoluianov/gomisc/logger"
	"github.com/ipoluianov/rsablind/app"
)

func main() {
	app.ServiceName = "rsablind"
	app.ServiceDisplayName = "Textbook RSA decryption oracle"
	app.ServiceDescription = "Textbook RSA decryption oracle for blinding attack exercises"
	app.ServiceRunFunc = app.RunAsServiceF
	app.ServiceStopFunc = app.StopServiceF

	logger.Init(logger.CurrentExePath() + "/logs")

	if !app.TryService() {
		app.RunConsole()
	}
}
