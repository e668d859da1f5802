package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dkrasnoff/flasharb/chain"
	"github.com/dkrasnoff/flasharb/config"
	"github.com/dkrasnoff/flasharb/executor"
	"github.com/dkrasnoff/flasharb/flashloan"
	"github.com/dkrasnoff/flasharb/oracle"
	"github.com/dkrasnoff/flasharb/relay"
	"github.com/dkrasnoff/flasharb/scanner"
	"github.com/dkrasnoff/flasharb/stats"
	"github.com/dkrasnoff/flasharb/store"
	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/utils"
	"github.com/dkrasnoff/flasharb/utils/metrics"
	"github.com/dkrasnoff/flasharb/venue"
	"github.com/dkrasnoff/flasharb/venue/sushiswap"
	"github.com/dkrasnoff/flasharb/venue/uniswap"
	"github.com/dkrasnoff/flasharb/wallet"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage engine",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load configuration", zap.Error(err))
		}
		secure, err := config.LoadSecureConfig()
		if err != nil {
			log.Fatal("Failed to load secure configuration", zap.Error(err))
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := run(ctx, cfg, secure, log); err != nil {
			log.Fatal("Engine stopped with error", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func run(ctx context.Context, cfg *config.Config, secure *config.SecureConfig, log *zap.Logger) error {
	scanM := metrics.NewScanMetrics("flasharb")
	execM := metrics.NewExecutionMetrics("flasharb")
	provM := metrics.NewProviderMetrics("flasharb")

	opps := store.New(cfg.StaleHorizon.Std(), log, scanM)
	tradeStats := stats.New(log)

	coinIDs := make(map[string]string, len(cfg.Chains))
	for name, chainCfg := range cfg.Chains {
		coinIDs[name] = chainCfg.CoinGeckoID
	}
	rates := oracle.NewCoinGecko(coinIDs, cfg.VsCurrency, cfg.RateCacheTTL.Std())

	limiter := rate.NewLimiter(rate.Limit(cfg.RPCRateLimit.RequestsPerSecond), cfg.RPCRateLimit.BurstSize)

	router := executor.NewRouter()
	chains := make(map[string]*scanner.ChainResources, len(cfg.Chains))
	var targets []scanner.Target

	for name, chainCfg := range cfg.Chains {
		res, err := setupChain(ctx, name, chainCfg, cfg, secure, limiter, router, opps, rates, log, scanM, execM, provM)
		if err != nil {
			return fmt.Errorf("failed to set up chain %s: %w", name, err)
		}
		chains[name] = res

		for _, pair := range chainCfg.Pairs {
			targets = append(targets, scanner.Target{
				Chain:    name,
				Pair:     types.Pair{Base: pair.Base, Quote: pair.Quote},
				AmountIn: pair.AmountIn,
			})
		}
	}

	if cfg.PrometheusEnabled {
		go servePrometheus(cfg.PrometheusEndpoint, log)
	}

	sched := scanner.New(
		scanner.Config{
			Interval:     cfg.ScanInterval.Std(),
			StaleHorizon: cfg.StaleHorizon.Std(),
			MinProfit:    cfg.MinProfit,
			AutoExecute:  cfg.AutoExecute,
		},
		chains, targets, opps, rates, router, tradeStats, log, scanM)

	go logResults(sched.Results(), tradeStats, log)

	log.Info("Arbitrage engine started",
		zap.Int("chains", len(chains)),
		zap.Int("targets", len(targets)),
		zap.Bool("auto_execute", cfg.AutoExecute),
		zap.Float64("min_profit", cfg.MinProfit))

	return sched.Run(ctx)
}

func setupChain(ctx context.Context, name string, chainCfg config.ChainConfig, cfg *config.Config,
	secure *config.SecureConfig, limiter *rate.Limiter, router *executor.Router,
	opps *store.Store, rates oracle.RateSource, log *zap.Logger,
	scanM *metrics.ScanMetrics, execM *metrics.ExecutionMetrics, provM *metrics.ProviderMetrics) (*scanner.ChainResources, error) {

	client, err := chain.Dial(ctx, chainCfg.RPCEndpoint, chainCfg.ChainID)
	if err != nil {
		return nil, err
	}

	tokens := make(map[string]uniswap.Token, len(chainCfg.Tokens))
	execTokens := make(map[string]executor.Token, len(chainCfg.Tokens))
	for symbol, t := range chainCfg.Tokens {
		addr := common.HexToAddress(t.Address)
		tokens[symbol] = uniswap.Token{Address: addr, Decimals: t.Decimals}
		execTokens[symbol] = executor.Token{Address: addr, Decimals: t.Decimals}
	}

	quoters := make([]venue.Quoter, 0, len(chainCfg.Venues))
	for _, v := range chainCfg.Venues {
		switch v {
		case "uniswap_v2":
			quoters = append(quoters, uniswap.NewMainnet(client.Eth(), tokens))
		case "sushiswap_v2":
			quoters = append(quoters, sushiswap.NewMainnet(client.Eth(), tokens))
		default:
			return nil, fmt.Errorf("unknown venue %q", v)
		}
	}
	aggregator := venue.NewAggregator(quoters, cfg.QuoteTimeout.Std(), limiter, log, scanM)

	registry := flashloan.NewRegistry(log, provM)
	probed := make([]*flashloan.StaticProvider, 0, len(chainCfg.Providers))
	for _, p := range chainCfg.Providers {
		provider := flashloan.NewStaticProvider(p.ID, float64(p.FeeBps)/10000, common.HexToAddress(p.Pool), p.Assets)
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
		probed = append(probed, provider)
	}
	prober := flashloan.NewProber(probed, chain.NewProviderHealth(client), cfg.HealthCheckInterval.Std(), log, provM)
	go prober.Run(ctx)

	gas := chain.NewGasTracker(client, cfg.GasRefreshInterval.Std(), log)
	go gas.Run(ctx)

	signer, err := wallet.NewLocalSigner(secure.PrivateKey, client.ChainID(), client.Eth())
	if err != nil {
		return nil, err
	}

	var relayClient *relay.Client
	if chainCfg.RelayURL != "" {
		if secure.RelayAuthKey == "" {
			return nil, fmt.Errorf("relay_url set but FLASHARB_RELAY_AUTH_KEY is empty")
		}
		authKey, err := ethcrypto.HexToECDSA(secure.RelayAuthKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse relay auth key: %w", err)
		}
		relayClient = relay.NewClient(chainCfg.RelayURL, authKey)
	}

	orch, err := executor.New(
		executor.Config{
			Contract:       common.HexToAddress(chainCfg.ExecutorContract),
			Tokens:         execTokens,
			ConfirmTimeout: cfg.ConfirmTimeout.Std(),
		},
		client, gas, registry, signer, relayClient, opps, rates, log, execM)
	if err != nil {
		return nil, err
	}
	router.Add(name, orch)

	return &scanner.ChainResources{
		Aggregator: aggregator,
		Registry:   registry,
		Gas:        gas,
	}, nil
}

func servePrometheus(endpoint string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         endpoint,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Info("Prometheus metrics listening", zap.String("endpoint", endpoint))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Prometheus listener failed", zap.Error(err))
	}
}

func logResults(results <-chan types.ExecutionResult, agg *stats.Aggregator, log *zap.Logger) {
	for res := range results {
		snapshot := agg.Snapshot()
		log.Info("Execution settled",
			zap.String("fingerprint", res.Fingerprint),
			zap.Bool("success", res.Success),
			zap.Float64("realized", res.RealizedProfit),
			zap.String("reason", res.FailureReason),
			zap.Uint64("total_trades", snapshot.TotalTrades),
			zap.Float64("success_rate", snapshot.SuccessRate),
			zap.Float64("total_profit", snapshot.TotalProfit),
			zap.Float64("max_drawdown", snapshot.MaxDrawdown))
	}
}
