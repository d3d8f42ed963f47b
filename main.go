package main

import (
	"flag"
	"os"
	"runtime"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/go-petrel/petrel/auth"
	"github.com/go-petrel/petrel/config"
	"github.com/go-petrel/petrel/imap"
	"github.com/go-petrel/petrel/lmtp"
	"github.com/go-petrel/petrel/server"
	"github.com/go-petrel/petrel/store"
)

// Functions

// initAuthenticator selects the correct implementation
// specified in the config to be used on IMAP LOGIN.
func initAuthenticator(conf *config.Config) (auth.PlainAuthenticator, error) {

	switch conf.Auth.Adapter {
	case "AuthPostgres":
		// Connect to PostgreSQL database.
		return auth.NewPostgresAuthenticator(
			conf.Auth.AuthPostgres.IP,
			conf.Auth.AuthPostgres.Port,
			conf.Auth.AuthPostgres.Database,
			conf.Auth.AuthPostgres.User,
			conf.Auth.AuthPostgres.Password,
			conf.Auth.AuthPostgres.SSLMode,
		)
	default: // AuthFile
		// Open authentication file and read user information.
		return auth.NewFileAuthenticator(
			conf.Auth.AuthFile.File,
			conf.Auth.AuthFile.Separator,
		)
	}
}

// initLogger initializes a JSON gokit-logger set
// to the according log level supplied via cli flag.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

func main() {

	// Set CPUs usable by petrel to all available.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Parse command-line flag that defines a config path.
	configFlag := flag.String("config", "config.toml", "Provide path to configuration file in TOML syntax.")
	loglevelFlag := flag.String("loglevel", "debug", "This flag sets the default logging level.")
	flag.Parse()

	logger := initLogger(*loglevelFlag)

	// Read configuration from file.
	conf, err := config.LoadConfig(*configFlag)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load the config", "err", err,
		)
		os.Exit(1)
	}

	// Pull secrets from the environment over the config.
	config.LoadEnv(conf)

	authenticator, err := initAuthenticator(conf)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize an authenticator",
			"err", err,
		)
		os.Exit(2)
	}

	mailStore, err := store.NewStore(log.With(logger, "component", "store"), conf.Maildir.RootDir, conf.IMAP.HierarchySeparator)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize the mailbox store",
			"err", err,
		)
		os.Exit(3)
	}

	// Prepare maildirs of all file-configured users, so
	// deliveries to them succeed before their first login.
	if fileAuth, ok := authenticator.(*auth.FileAuthenticator); ok {

		for _, name := range fileAuth.UserNames() {

			if err := mailStore.EnsureUser(name); err != nil {
				level.Error(logger).Log(
					"msg", "failed to prepare user maildir",
					"user", name,
					"err", err,
				)
				os.Exit(3)
			}
		}
	}

	petrelMetrics := NewPetrelMetrics(conf.IMAP.PrometheusAddr)

	imapListener, err := server.NewListener(conf.IMAP.ListenAddr, conf.IMAP.CertLoc, conf.IMAP.KeyLoc)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to open the IMAP listener",
			"err", err,
		)
		os.Exit(4)
	}
	defer imapListener.Close()

	lmtpListener, err := server.NewListener(conf.LMTP.ListenAddr, "", "")
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to open the LMTP listener",
			"err", err,
		)
		os.Exit(5)
	}
	defer lmtpListener.Close()

	imapLogger := log.With(logger, "component", "imap")

	var imapService imap.Service
	imapService = imap.NewService(imapLogger, authenticator, mailStore)
	imapService = imap.NewLoggingService(imapService, imapLogger)
	imapService = imap.NewMetricsService(imapService,
		petrelMetrics.IMAP.Logins,
		petrelMetrics.IMAP.Logouts,
		petrelMetrics.IMAP.Selects,
		petrelMetrics.IMAP.Fetches,
		petrelMetrics.IMAP.Expunges,
	)

	lmtpLogger := log.With(logger, "component", "lmtp")

	var lmtpService lmtp.Service
	lmtpService = lmtp.NewService(lmtpLogger, mailStore, conf.LMTP.Hostname)
	lmtpService = lmtp.NewLoggingService(lmtpService, lmtpLogger)
	lmtpService = lmtp.NewMetricsService(lmtpService,
		petrelMetrics.LMTP.Deliveries,
		petrelMetrics.LMTP.Rejections,
	)

	go runPromHTTP(logger, conf.IMAP.PrometheusAddr)

	level.Info(logger).Log(
		"msg", "petrel is up",
		"imap_addr", imapListener.Addr().String(),
		"lmtp_addr", lmtpListener.Addr().String(),
	)

	// Loop on incoming requests of both front ends.
	var g errgroup.Group

	g.Go(func() error {
		return imap.Run(imapListener, imapService, imapLogger, conf.IMAP.Greeting, conf.IMAP.MaxLineLength)
	})

	g.Go(func() error {
		return lmtp.Run(lmtpListener, lmtpService, lmtpLogger, conf.LMTP.Hostname)
	})

	if err := g.Wait(); err != nil {
		level.Error(logger).Log(
			"msg", "failed to serve incoming connections",
			"err", err,
		)
		os.Exit(6)
	}
}
