package app

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/ipoluianov/gomisc/logger"
	"github.com/ipoluianov/rsablind/config"
	"github.com/ipoluianov/rsablind/demo"
	"github.com/ipoluianov/rsablind/http_server"
	"github.com/ipoluianov/rsablind/textbook"
	"github.com/kardianos/osext"
	"github.com/kardianos/service"
)

var ServiceName string
var ServiceDisplayName string
var ServiceDescription string
var ServiceRunFunc func() error
var ServiceStopFunc func()

var server *http_server.HttpServer

func SetAppPath() {
	exePath, _ := osext.ExecutableFolder()
	err := os.Chdir(exePath)
	if err != nil {
		return
	}
}

func init() {
	SetAppPath()
}

// TryService handles every flag that does not start the console oracle.
func TryService() bool {
	serviceFlagPtr := flag.Bool("service", false, "Run as service")
	installFlagPtr := flag.Bool("install", false, "Install service")
	uninstallFlagPtr := flag.Bool("uninstall", false, "Uninstall service")
	startFlagPtr := flag.Bool("start", false, "Start service")
	stopFlagPtr := flag.Bool("stop", false, "Stop service")
	demoFlagPtr := flag.Bool("demo", false, "Print the blinding attack report")
	attackFlagPtr := flag.String("attack", "", "Attack the oracle service at the given URL")

	flag.Parse()

	switch {
	case *serviceFlagPtr:
		runService()
	case *installFlagPtr:
		control("install", func(s service.Service) error { return s.Install() })
	case *uninstallFlagPtr:
		control("uninstall", func(s service.Service) error { return s.Uninstall() })
	case *startFlagPtr:
		control("start", func(s service.Service) error { return s.Start() })
	case *stopFlagPtr:
		control("stop", func(s service.Service) error { return s.Stop() })
	case *demoFlagPtr:
		runDemo()
	case *attackFlagPtr != "":
		runAttack(*attackFlagPtr)
	default:
		return false
	}
	return true
}

func NewSvcConfig() *service.Config {
	var svcConfig = &service.Config{
		Name:        ServiceName,
		DisplayName: ServiceDisplayName,
		Description: ServiceDescription,
	}
	svcConfig.Arguments = append(svcConfig.Arguments, "-service")
	return svcConfig
}

func newService() service.Service {
	s, err := service.New(&program{}, NewSvcConfig())
	if err != nil {
		log.Fatal(err)
	}
	return s
}

func control(action string, fn func(s service.Service) error) {
	fmt.Println("Service", action, "begin")
	err := fn(newService())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Service", action, "done")
}

func runService() {
	err := newService().Run()
	if err != nil {
		logger.Error(err)
	}
}

type program struct{}

func (p *program) Start(_ service.Service) error {
	return ServiceRunFunc()
}

func (p *program) Stop(_ service.Service) error {
	ServiceStopFunc()
	return nil
}

func configPath() string {
	return logger.CurrentExePath() + "/" + "config.json"
}

func loadConfig() (conf config.Config, err error) {
	conf, err = config.LoadFromFile(configPath())
	if err != nil {
		logger.Println("[ERROR]", "App::loadConfig", "config.LoadFromFile error:", err)
	}
	return
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runDemo() {
	conf, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	err = demo.Run(ctx, os.Stdout, conf)
	if err != nil {
		log.Fatal(err)
	}
}

func runAttack(url string) {
	conf, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	result, err := demo.AttackRemote(ctx, os.Stdout, url, conf)
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		log.Fatal(err)
	}
}

// Start generates a fresh key, publishes the configured message as the target
// ciphertext and serves the decryption oracle.
func Start() error {
	logger.Println("[i]", "App::Start", "begin")

	conf, err := loadConfig()
	if err != nil {
		return err
	}

	keyPair, err := textbook.GenerateKeyPair(rand.Reader, conf.Key.Bits)
	if err != nil {
		logger.Println("[ERROR]", "App::Start", "textbook.GenerateKeyPair error:", err)
		return err
	}
	target, err := keyPair.EncryptText(conf.Attack.Message)
	if err != nil {
		logger.Println("[ERROR]", "App::Start", "EncryptText error:", err)
		return err
	}

	server, err = http_server.NewHttpServer(conf, keyPair, target)
	if err != nil {
		logger.Println("[ERROR]", "App::Start", "http_server.NewHttpServer error:", err)
		return err
	}
	server.Start()

	logger.Println("[i]", "App::Start", "end", "port", conf.Http.HttpPort, "mode", conf.Http.OracleMode)
	return nil
}

func Stop() {
	if server == nil {
		return
	}
	err := server.Stop()
	if err != nil {
		logger.Println("[ERROR]", "App::Stop", "server.Stop error:", err)
	}
	server = nil
}

func RunConsole() {
	logger.Println("[i]", "App::RunConsole", "begin")
	err := Start()
	if err != nil {
		logger.Println("[ERROR]", "App::RunConsole", "Start error:", err)
		return
	}
	_, _ = fmt.Scanln()
	Stop()
	logger.Println("[i]", "App::RunConsole", "end")
}

func RunAsServiceF() error {
	return Start()
}

func StopServiceF() {
	Stop()
}
