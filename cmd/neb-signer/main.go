package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ATMackay/neb-signer/accounts"
	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ATMackay/neb-signer/service"
	"github.com/vrischmann/envconfig"
	yaml "gopkg.in/yaml.v3"
)

const envPrefix = "NEB_SIGNER"

var (
	configFilePath string
	configFilePtr  = flag.String("config", "config.yml", "path to config file")
	importPtr      = flag.String("import", "", "import a keystore json file into the account store and exit")
	newAccountPtr  = flag.Bool("new", false, "create a new account encrypted with the configured passphrase and exit")
)

// RUN WITH PLAINTEXT CONFIG [RECOMMENDED FOR TESTING ONLY]
// $ go run ./cmd/neb-signer --config ./config.yml
//
// OR RUN WITH ENVIRONMENT VARIABLES
//
// $ go build -o neb-signer ./cmd/neb-signer
// $ export NEB_SIGNER_URLS=<node_url>
// $ export NEB_SIGNER_ACCOUNT=<address>
// $ export NEB_SIGNER_PASSPHRASE=<passphrase>
// $ ./neb-signer
//
// ACCOUNT MANAGEMENT
//
// $ ./neb-signer --import ./keystore.json
// $ NEB_SIGNER_PASSPHRASE=<passphrase> ./neb-signer --new

func init() {
	// Parse flag containing path to config file
	flag.Parse()
	if configFilePtr != nil {
		configFilePath = *configFilePtr
	}
}

// parseYAMLConfig parse configuration file or environment variables, receiver must be a pointer
func parseYAMLConfig(configFile string, receiver any, prefix string) error {
	b, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if b != nil {
		if err := yaml.Unmarshal(b, receiver); err != nil {
			return err
		}
	}
	// environment variables supersede config yaml files
	if err := envconfig.InitWithOptions(receiver, envconfig.Options{Prefix: prefix, AllOptional: true}); err != nil {
		return err
	}
	return nil
}

func main() {

	var cfg service.Config

	if err := parseYAMLConfig(configFilePath, &cfg, envPrefix); err != nil {
		panic(fmt.Sprintf("error parsing config: %v", err))
	}

	cfg.Sanitize()

	l, err := service.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	store, err := accounts.Open(cfg.Keystore)
	if err != nil {
		panic(fmt.Sprintf("error opening keystore: %v", err))
	}
	defer store.Close()

	switch {
	case *importPtr != "":
		doc, err := os.ReadFile(filepath.Clean(*importPtr))
		if err != nil {
			panic(err)
		}
		addr, err := store.Import(doc)
		if err != nil {
			panic(fmt.Sprintf("error importing keystore: %v", err))
		}
		l.WithField("account", addr.String()).Info("imported account")
		return
	case *newAccountPtr:
		if cfg.Passphrase == "" {
			panic("passphrase must be set to create an account")
		}
		k, err := store.Create(cfg.Passphrase, nil)
		if err != nil {
			panic(fmt.Sprintf("error creating account: %v", err))
		}
		l.WithField("account", k.Address().String()).Info("created account")
		k.Zero()
		return
	}

	multiClient, err := neb.NewMultiNodeClient(cfg.URLs, neb.Dial)
	if err != nil {
		panic(err)
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		state, err := multiClient.GetNebState(ctx)
		cancel()
		if err != nil {
			panic(fmt.Sprintf("error fetching chain id: %v", err))
		}
		chainID = state.ChainID
	}

	addr, err := address.Decode(cfg.Account, address.Normal)
	if err != nil {
		panic(fmt.Sprintf("error parsing account: %v", err))
	}
	key, err := store.Unlock(addr, cfg.Passphrase)
	if err != nil {
		panic(fmt.Sprintf("error unlocking account: %v", err))
	}

	srv := service.New(cfg.Port, l, multiClient, service.NewSigner(key, multiClient, chainID))

	if err := srv.Start(); err != nil {
		panic(fmt.Sprintf("error starting service: %v", err))
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	sig := <-sigChan
	srv.Stop(sig)
	key.Zero()
}
