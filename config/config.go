package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Tipos de venue soportados.
const (
	KindRouter   = "router"
	KindQuoteAPI = "quote_api"
	KindStatic   = "static"
)

// Config es la configuración completa del detector.
type Config struct {
	Detector  DetectorConfig         `yaml:"detector"`
	Chain     ChainConfig            `yaml:"chain"`
	Gas       GasConfig              `yaml:"gas"`
	Arbitrage ArbitrageConfig        `yaml:"arbitrage"`
	Tokens    map[string]TokenConfig `yaml:"tokens"`
	Pairs     []PairConfig           `yaml:"pairs"`
	Venues    []VenueConfig          `yaml:"venues"` // el orden es el de desempate
	Storage   StorageConfig          `yaml:"storage"`
	Notify    NotifyConfig           `yaml:"notify"`
	API       APIConfig              `yaml:"api"`
	Log       LogConfig              `yaml:"log"`
}

// DetectorConfig controla el loop de detección.
type DetectorConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	FetchTimeoutMs       int `yaml:"fetch_timeout_ms"`
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"` // 0 = sin límite
}

// ChainConfig es el endpoint RPC de la red.
type ChainConfig struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`
}

// GasConfig parametriza el modelo de coste de ejecución.
type GasConfig struct {
	PriceGwei      float64 `yaml:"price_gwei"` // valor estático y fallback del oráculo
	Limit          uint64  `yaml:"limit"`
	TxCount        int     `yaml:"tx_count"`
	NativeTokenUSD float64 `yaml:"native_token_usd"`
	Live           bool    `yaml:"live"` // consultar eth_gasPrice
	CacheSeconds   int     `yaml:"cache_seconds"`
}

// ArbitrageConfig son los umbrales de aceptación y el nocional de la sonda.
type ArbitrageConfig struct {
	MinProfitUSD        float64 `yaml:"min_profit_usd"`
	MinProfitPercentage float64 `yaml:"min_profit_percentage"`
	TradeAmountUSD      float64 `yaml:"trade_amount_usd"`
}

// TokenConfig describe un token ERC20.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// PairConfig referencia dos tokens por símbolo.
type PairConfig struct {
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`
}

// VenueConfig describe una fuente de precios.
type VenueConfig struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"` // router | quote_api | static
	RouterAddress  string            `yaml:"router_address"`
	FactoryAddress string            `yaml:"factory_address"`
	BaseURL        string            `yaml:"base_url"`
	APIKey         string            `yaml:"api_key"`
	RatePerSec     float64           `yaml:"rate_per_sec"`
	Enabled        *bool             `yaml:"enabled"` // nil = habilitado
	Prices         map[string]string `yaml:"prices"`  // solo static: "WETH/USDC" → "3000.5"
}

// IsEnabled devuelve true salvo que enabled sea explícitamente false.
func (v VenueConfig) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// StorageConfig controla dónde se persisten las oportunidades.
type StorageConfig struct {
	Driver        string `yaml:"driver"` // sqlite | postgres
	DSN           string `yaml:"dsn"`    // ruta SQLite, ":memory:" o URL postgres://
	RetentionDays int    `yaml:"retention_days"`
}

// NotifyConfig controla a dónde se reportan las oportunidades aceptadas.
type NotifyConfig struct {
	Console bool        `yaml:"console"`
	Table   bool        `yaml:"table"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig es el destino pub/sub + stream.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Stream   string `yaml:"stream"`
}

// APIConfig controla la API HTTP de solo lectura.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben el YAML; después se aplican defaults.
// No valida: eso lo hace Validate.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w: %w", path, domain.ErrConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w: %w", domain.ErrConfig, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CheckInterval devuelve el intervalo entre ticks.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Detector.CheckIntervalSeconds) * time.Second
}

// FetchTimeout devuelve el timeout de cada fetch individual.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Detector.FetchTimeoutMs) * time.Millisecond
}

// GasCacheTTL devuelve cuánto se cachea el precio de gas en vivo.
func (c *Config) GasCacheTTL() time.Duration {
	return time.Duration(c.Gas.CacheSeconds) * time.Second
}

// Retention devuelve la antigüedad máxima del historial (0 = sin prune).
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// GasModel construye el modelo de gas del dominio.
func (c *Config) GasModel() domain.GasModel {
	return domain.GasModel{
		PriceGwei:      c.Gas.PriceGwei,
		Limit:          c.Gas.Limit,
		TxCount:        c.Gas.TxCount,
		NativeTokenUSD: c.Gas.NativeTokenUSD,
	}
}

// Thresholds convierte los umbrales a decimal.
func (c *Config) Thresholds() (domain.Thresholds, error) {
	usd, err := domain.DecimalFromConfig("arbitrage.min_profit_usd", c.Arbitrage.MinProfitUSD)
	if err != nil {
		return domain.Thresholds{}, err
	}
	pct, err := domain.DecimalFromConfig("arbitrage.min_profit_percentage", c.Arbitrage.MinProfitPercentage)
	if err != nil {
		return domain.Thresholds{}, err
	}
	return domain.Thresholds{MinProfitUSD: usd, MinProfitPercentage: pct}, nil
}

// TradeNotional devuelve el nocional en USD de la sonda.
func (c *Config) TradeNotional() (decimal.Decimal, error) {
	return domain.DecimalFromConfig("arbitrage.trade_amount_usd", c.Arbitrage.TradeAmountUSD)
}

// TokenPairs resuelve los pares configurados contra la tabla de tokens.
func (c *Config) TokenPairs() ([]domain.TokenPair, error) {
	pairs := make([]domain.TokenPair, 0, len(c.Pairs))
	for i, p := range c.Pairs {
		base, ok := c.token(p.Base)
		if !ok {
			return nil, fmt.Errorf("config: pairs[%d]: unknown token %q: %w", i, p.Base, domain.ErrConfig)
		}
		quote, ok := c.token(p.Quote)
		if !ok {
			return nil, fmt.Errorf("config: pairs[%d]: unknown token %q: %w", i, p.Quote, domain.ErrConfig)
		}
		pairs = append(pairs, domain.TokenPair{Base: base, Quote: quote})
	}
	return pairs, nil
}

func (c *Config) token(symbol string) (domain.Token, bool) {
	t, ok := c.Tokens[symbol]
	if !ok {
		return domain.Token{}, false
	}
	return domain.Token{Symbol: symbol, Address: t.Address, Decimals: t.Decimals}, true
}

// EnabledVenues devuelve los venues habilitados en el orden configurado.
func (c *Config) EnabledVenues() []VenueConfig {
	out := make([]VenueConfig, 0, len(c.Venues))
	for _, v := range c.Venues {
		if v.IsEnabled() {
			out = append(out, v)
		}
	}
	return out
}

// Validate reúne todos los problemas en un único error envuelto en domain.ErrConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Detector.FetchTimeoutMs <= 0 {
		add("detector.fetch_timeout_ms must be positive")
	}
	if c.Detector.MaxConcurrentFetches < 0 {
		add("detector.max_concurrent_fetches must not be negative")
	}

	if !finite(c.Gas.PriceGwei) || c.Gas.PriceGwei < 0 {
		add("gas.price_gwei must be a finite non-negative number")
	}
	if !finite(c.Gas.NativeTokenUSD) || c.Gas.NativeTokenUSD < 0 {
		add("gas.native_token_usd must be a finite non-negative number")
	}
	if c.Gas.TxCount < 0 {
		add("gas.tx_count must not be negative")
	}

	if !finite(c.Arbitrage.MinProfitUSD) {
		add("arbitrage.min_profit_usd must be finite")
	}
	if !finite(c.Arbitrage.MinProfitPercentage) {
		add("arbitrage.min_profit_percentage must be finite")
	}
	if !finite(c.Arbitrage.TradeAmountUSD) || c.Arbitrage.TradeAmountUSD <= 0 {
		add("arbitrage.trade_amount_usd must be positive")
	}

	for sym, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			add("tokens.%s.address %q is not a hex address", sym, t.Address)
		}
	}

	if len(c.Pairs) == 0 {
		add("at least one pair is required")
	}
	for i, p := range c.Pairs {
		if _, ok := c.Tokens[p.Base]; !ok {
			add("pairs[%d].base: unknown token %q", i, p.Base)
		}
		if _, ok := c.Tokens[p.Quote]; !ok {
			add("pairs[%d].quote: unknown token %q", i, p.Quote)
		}
		if p.Base == p.Quote {
			add("pairs[%d]: base and quote are the same token", i)
		}
	}

	seen := map[string]bool{}
	enabled := 0
	for i, v := range c.Venues {
		if v.Name == "" {
			add("venues[%d].name is required", i)
		}
		if seen[v.Name] {
			add("venues[%d]: duplicate name %q", i, v.Name)
		}
		seen[v.Name] = true
		if !v.IsEnabled() {
			continue
		}
		enabled++

		switch v.Kind {
		case KindRouter:
			if !common.IsHexAddress(v.RouterAddress) {
				add("venues[%d] %s: router_address %q is not a hex address", i, v.Name, v.RouterAddress)
			}
			if v.FactoryAddress != "" && !common.IsHexAddress(v.FactoryAddress) {
				add("venues[%d] %s: factory_address %q is not a hex address", i, v.Name, v.FactoryAddress)
			}
			if c.Chain.RPCURL == "" {
				add("venues[%d] %s: chain.rpc_url is required for router venues", i, v.Name)
			}
		case KindQuoteAPI:
			if c.Chain.ChainID <= 0 {
				add("venues[%d] %s: chain.chain_id is required for quote_api venues", i, v.Name)
			}
		case KindStatic:
			if len(v.Prices) == 0 {
				add("venues[%d] %s: static venue needs prices", i, v.Name)
			}
		default:
			add("venues[%d] %s: unknown kind %q", i, v.Name, v.Kind)
		}
	}
	if enabled < 2 {
		add("at least two enabled venues are required, got %d", enabled)
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		add("storage.driver %q must be sqlite or postgres", c.Storage.Driver)
	}

	if c.Notify.Redis.Enabled && c.Notify.Redis.Addr == "" {
		add("notify.redis.addr is required when redis is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYARB_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("POLYARB_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("POLYARB_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYARB_REDIS_ADDR"); v != "" {
		cfg.Notify.Redis.Addr = v
	}
	if v := os.Getenv("POLYARB_REDIS_PASSWORD"); v != "" {
		cfg.Notify.Redis.Password = v
	}
	if v := os.Getenv("POLYARB_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("POLYARB_GAS_PRICE_GWEI"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gas.PriceGwei = f
		}
	}
	// la API key no debería vivir en el YAML
	if v := os.Getenv("POLYARB_QUOTE_API_KEY"); v != "" {
		for i := range cfg.Venues {
			if cfg.Venues[i].Kind == KindQuoteAPI && cfg.Venues[i].APIKey == "" {
				cfg.Venues[i].APIKey = v
			}
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Detector.CheckIntervalSeconds <= 0 {
		cfg.Detector.CheckIntervalSeconds = 30
	}
	if cfg.Detector.FetchTimeoutMs == 0 {
		cfg.Detector.FetchTimeoutMs = 5000
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 137 // Polygon PoS
	}
	if cfg.Gas.Limit == 0 {
		cfg.Gas.Limit = 300_000
	}
	if cfg.Gas.TxCount == 0 {
		cfg.Gas.TxCount = 2 // compra + venta
	}
	if cfg.Gas.NativeTokenUSD == 0 {
		cfg.Gas.NativeTokenUSD = 1
	}
	if cfg.Gas.CacheSeconds <= 0 {
		cfg.Gas.CacheSeconds = 30
	}
	if cfg.Arbitrage.TradeAmountUSD == 0 {
		cfg.Arbitrage.TradeAmountUSD = 1000
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyarb.db"
	}
	if cfg.Notify.Redis.Channel == "" && cfg.Notify.Redis.Stream == "" {
		cfg.Notify.Redis.Channel = "polyarb:opportunities"
		cfg.Notify.Redis.Stream = "polyarb:opportunities:stream"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
