package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/buyout"
	"github.com/fractional-company/vault-sdk-go/config"
	"github.com/fractional-company/vault-sdk-go/db"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/fractional-company/vault-sdk-go/vault"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newLogger configures logrus the same way for every command.
func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func configPath(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// runtime is everything a command needs after config is loaded.
type runtime struct {
	cfg     config.Config
	path    string
	chainID uint64
	log     *logrus.Logger
	client  *eth.Client
	store   *db.Store
	deps    vault.Deps
}

// setup loads the config, dials the node and opens the local cache. The
// connection signs only when the configured key variable is set.
func setup(cmd *cobra.Command) (*runtime, error) {
	ctx := cmd.Context()
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg.General.LogLevel)

	client, err := eth.NewClient(ctx, cfg.General.RPCURL)
	if err != nil {
		return nil, sdkerr.ChainRead("vaultctl.dial", err)
	}
	rt := &runtime{cfg: cfg, path: path, log: log, client: client}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		rt.close()
		return nil, sdkerr.ChainRead("vaultctl.chainId", err)
	}
	if cfg.General.ChainID != 0 && chainID.Uint64() != cfg.General.ChainID {
		rt.close()
		return nil, sdkerr.Configuration("vaultctl.chainId", "node is on chain %d, config expects %d", chainID.Uint64(), cfg.General.ChainID)
	}
	rt.chainID = chainID.Uint64()

	key, err := cfg.PrivateKey()
	if err != nil {
		rt.close()
		return nil, err
	}
	var conn *eth.Connection
	if key != nil {
		conn = eth.NewSigning(client, key, chainID)
	} else {
		log.Debugf("$%s not set, running read-only", cfg.General.PrivateKeyEnv)
		conn = eth.NewReadOnly(client)
	}

	timeout, _ := cfg.ReceiptTimeout()
	ttl, _ := cfg.PermitTTL()
	reg, _ := cfg.Registry()
	store, _ := cfg.ProofStore()

	cachePath := cfg.Database.CachePath
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(filepath.Dir(path), cachePath)
	}
	rt.store, err = db.Open(cachePath, log)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.deps = vault.Deps{
		Exec:     executor.New(conn, executor.Options{Deadline: timeout, Logger: log}),
		Registry: reg,
		Proofs:   store,
		Cache:    rt.store,
		Queue:    buyout.NewQueue(),
		BuyoutOptions: []buyout.Option{
			buyout.WithPermitTTL(ttl),
			buyout.WithLogger(log),
		},
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warnf("Failed to close cache: %v", err)
		}
	}
	if rt.client != nil {
		rt.client.Close()
	}
}

func (rt *runtime) open(ctx context.Context, raw string) (*vault.Vault, error) {
	addr, err := parseAddress("vault", raw)
	if err != nil {
		return nil, err
	}
	return vault.Open(ctx, rt.deps, addr)
}

// record journals a receipt. A journal failure never fails the command since
// the transaction already landed.
func (rt *runtime) record(op string, vault common.Address, r *types.Receipt) {
	if r == nil {
		return
	}
	err := rt.store.Record(db.Entry{ChainID: rt.chainID, Op: op, Vault: vault, Receipt: r})
	if err != nil {
		rt.log.Warnf("Failed to journal %s tx=%s: %v", op, r.TxHash.Hex(), err)
	}
}

// write runs either the estimate or the send of one operation depending on
// --estimate, then prints the result.
func (rt *runtime) write(cmd *cobra.Command, op string, vault common.Address,
	send func(context.Context) (*types.Receipt, error),
	estimate func(context.Context) (types.GasEstimate, error),
) error {
	ctx := cmd.Context()
	if only, _ := cmd.Flags().GetBool("estimate"); only {
		est, err := estimate(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, est)
	}
	r, err := send(ctx)
	if err != nil {
		return err
	}
	rt.log.Infof("%s mined in block %d tx=%s", op, r.BlockNumber, r.TxHash.Hex())
	rt.record(op, vault, r)
	return printJSON(cmd, r)
}

func addEstimateFlag(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().Bool("estimate", false, "Print the gas estimate instead of sending")
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func parseAddress(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, sdkerr.Validation("vaultctl.args", "invalid %s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseBig(name, raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, sdkerr.Validation("vaultctl.args", "invalid %s %q", name, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
