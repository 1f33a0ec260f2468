package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/cryptodevs/nft-collection/publish"
	"github.com/cryptodevs/nft-collection/publish/config"
	"github.com/cryptodevs/nft-collection/publish/contracts/cryptodevs"
	"github.com/cryptodevs/nft-collection/publish/logconfig"
	"github.com/cryptodevs/nft-collection/publish/runner"
)

const envFileFlag = "env-file"

func main() {
	logconfig.Bootstrap(os.Stderr)

	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run returns the process exit status. Failures are reported on stderr only.
func run(args []string, stdout, stderr io.Writer) int {
	if err := newApp(stdout, stderr).Run(args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "cd-publish",
		Usage:     "deploy the Crypto Devs NFT collection",
		UsageText: "cd-publish [--env-file .env]\n   cd-publish inspect --address <addr>",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  envFileFlag,
				Value: config.DefaultEnvFile,
				Usage: "dotenv file read before the environment (skipped when missing)",
			},
		},
		Action:   deployAction,
		Commands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "print the sale state of a deployed collection as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Required: true, Usage: "collection address"},
				},
				Action: inspectAction,
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(envFileFlag))
	if err != nil {
		return nil, err
	}
	if err := logconfig.Configure(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func deployAction(c *cli.Context) error {
	if c.Args().Present() {
		return errors.Errorf("unexpected arguments: %s", strings.Join(c.Args().Slice(), " "))
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	key, deployerAddr, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return err
	}
	if cfg.PublicAddress != "" && !strings.EqualFold(cfg.PublicAddress, deployerAddr.Hex()) {
		return errors.Errorf("public-address %s does not match private key address %s", cfg.PublicAddress, deployerAddr.Hex())
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.Timeout())
	defer cancel()

	feeCap, tipCap := cfg.FeeCaps()
	d, err := publish.NewDeployer(ctx, cfg.RPCURL, key, publish.Options{
		ChainID:      cfg.ChainID,
		GasFeeCap:    feeCap,
		GasTipCap:    tipCap,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	log.Info().
		Str("deployer", d.Address().Hex()).
		Uint64("chain_id", d.ChainID()).
		Uint64("confirmations", cfg.Confirmations).
		Msg("Connected")

	store := publish.NewArtifactStore(cfg.ArtifactsDir)
	store.RegisterConstructor(cryptodevs.Name, cryptodevs.Constructor())
	network := publish.NewNetwork(d, store, publish.NetworkOptions{
		GasLimit:      cfg.GasLimit,
		Confirmations: cfg.Confirmations,
	})

	_, err = runner.Deploy(ctx, network, runner.Params{
		WhitelistAddress: cfg.WhitelistContractAddress,
		MetadataURL:      cfg.MetadataURL,
	}, c.App.Writer)
	return err
}

func inspectAction(c *cli.Context) error {
	addr, err := parseAddress(c.String("address"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRead(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.Timeout())
	defer cancel()

	reader, err := publish.DialReader(cfg.RPCURL, cfg.PollInterval)
	if err != nil {
		return err
	}
	defer reader.Close()

	code, err := reader.CodeAt(ctx, addr)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return errors.Wrapf(publish.ErrNoCode, "%s", addr.Hex())
	}

	state, err := cryptodevs.Inspect(ctx, reader, addr)
	if err != nil {
		return err
	}
	blob, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(blob))
	return err
}

func parsePrivateKey(v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "parse private key")
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func parseAddress(v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, errors.Errorf("invalid address: %s", v)
	}
	return common.HexToAddress(v), nil
}
