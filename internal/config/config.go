package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pco-network/pco/internal/core/application"
	"github.com/pco-network/pco/internal/core/ports"
	"github.com/pco-network/pco/internal/infrastructure/db"
	nostr_notifier "github.com/pco-network/pco/internal/infrastructure/notifier/nostr"
	inmemorygateway "github.com/pco-network/pco/internal/infrastructure/payment/inmemory"
	webhookgateway "github.com/pco-network/pco/internal/infrastructure/payment/webhook"
	inmemoryregistry "github.com/pco-network/pco/internal/infrastructure/registry/inmemory"
	timescheduler "github.com/pco-network/pco/internal/infrastructure/scheduler/gocron"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedEventDbs = supportedType{
		"watermill": {},
		"postgres":  {},
	}
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
		"redis":    {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedPaymentGateways = supportedType{
		"inmemory": {},
		"webhook":  {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType        string
	EventDbType   string
	DbDir         string
	DbUrl         string
	RedisUrl      string
	SchedulerType string

	PaymentGatewayType string
	PayoutUrl          string
	PaymentTimeout     time.Duration

	Custodian          string
	CollectionInterval time.Duration
	ExternalRegistries []string

	NostrNotifyProfile    string
	OtelCollectorEndpoint string

	repo       ports.RepoManager
	svc        application.Service
	payments   ports.PaymentGateway
	scheduler  ports.SchedulerService
	registries map[string]ports.ExternalRegistry
	notifier   ports.Notifier
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir               = "DATADIR"
	Port                  = "PORT"
	LogLevel              = "LOG_LEVEL"
	DbType                = "DB_TYPE"
	EventDbType           = "EVENT_DB_TYPE"
	DbUrl                 = "DB_URL"
	RedisUrl              = "REDIS_URL"
	SchedulerType         = "SCHEDULER_TYPE"
	PaymentGatewayType    = "PAYMENT_GATEWAY_TYPE"
	PayoutUrl             = "PAYOUT_URL"
	PaymentTimeout        = "PAYMENT_TIMEOUT"
	Custodian             = "CUSTODIAN"
	CollectionInterval    = "COLLECTION_INTERVAL"
	ExternalRegistries    = "EXTERNAL_REGISTRIES"
	NostrNotifyProfile    = "NOSTR_NOTIFY_PROFILE"
	OtelCollectorEndpoint = "OTEL_COLLECTOR_ENDPOINT"

	defaultDatadir            = appDataDir("pcod")
	DefaultPort               = 7080
	defaultLogLevel           = 4
	defaultDbType             = "badger"
	defaultEventDbType        = "watermill"
	defaultSchedulerType      = "gocron"
	defaultPaymentGatewayType = "inmemory"
	defaultPaymentTimeout     = 10 * time.Second
	defaultCustodian          = "custodian"
	defaultCollectionInterval = time.Hour
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("PCO")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(PaymentGatewayType, defaultPaymentGatewayType)
	viper.SetDefault(PaymentTimeout, defaultPaymentTimeout)
	viper.SetDefault(Custodian, defaultCustodian)
	viper.SetDefault(CollectionInterval, defaultCollectionInterval)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	dbPath := filepath.Join(viper.GetString(Datadir), "db")

	var dbUrl string
	if viper.GetString(DbType) == "postgres" || viper.GetString(EventDbType) == "postgres" {
		dbUrl = viper.GetString(DbUrl)
		if dbUrl == "" {
			return nil, fmt.Errorf("DB_URL not provided")
		}
	}

	var redisUrl string
	if viper.GetString(DbType) == "redis" {
		redisUrl = viper.GetString(RedisUrl)
		if redisUrl == "" {
			return nil, fmt.Errorf("REDIS_URL not provided")
		}
	}

	return &Config{
		Datadir:               viper.GetString(Datadir),
		Port:                  viper.GetUint32(Port),
		LogLevel:              viper.GetInt(LogLevel),
		DbType:                viper.GetString(DbType),
		EventDbType:           viper.GetString(EventDbType),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		RedisUrl:              redisUrl,
		SchedulerType:         viper.GetString(SchedulerType),
		PaymentGatewayType:    viper.GetString(PaymentGatewayType),
		PayoutUrl:             viper.GetString(PayoutUrl),
		PaymentTimeout:        viper.GetDuration(PaymentTimeout),
		Custodian:             viper.GetString(Custodian),
		CollectionInterval:    viper.GetDuration(CollectionInterval),
		ExternalRegistries:    parseList(viper.GetString(ExternalRegistries)),
		NostrNotifyProfile:    viper.GetString(NostrNotifyProfile),
		OtelCollectorEndpoint: viper.GetString(OtelCollectorEndpoint),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if !supportedPaymentGateways.supports(c.PaymentGatewayType) {
		return fmt.Errorf(
			"payment gateway type not supported, please select one of: %s", supportedPaymentGateways,
		)
	}
	if c.PaymentGatewayType == "webhook" && c.PayoutUrl == "" {
		return fmt.Errorf("PAYOUT_URL not provided")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("invalid payment timeout, must be positive")
	}
	if c.CollectionInterval < 0 {
		return fmt.Errorf("invalid collection interval, must not be negative")
	}
	if c.CollectionInterval > 0 && c.CollectionInterval < time.Minute {
		c.CollectionInterval = time.Minute
		log.Infof("collection interval must be at least 1 minute, rounded to %s", c.CollectionInterval)
	}
	if len(c.Custodian) <= 0 {
		return fmt.Errorf("missing custodian identity")
	}
	if c.NostrNotifyProfile != "" {
		if err := nostr_notifier.ValidateProfile(c.NostrNotifyProfile); err != nil {
			return fmt.Errorf("invalid nostr notify profile: %w", err)
		}
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.paymentGateway(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	c.registryServices()
	c.notifierService()
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "watermill":
		eventStoreConfig = []interface{}{}
	case "postgres":
		eventStoreConfig = []interface{}{c.DbUrl}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl}
	case "redis":
		dataStoreConfig = []interface{}{c.RedisUrl}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) paymentGateway() error {
	var svc ports.PaymentGateway
	var err error
	switch c.PaymentGatewayType {
	case "inmemory":
		svc = inmemorygateway.NewGateway()
	case "webhook":
		svc, err = webhookgateway.NewGateway(c.PayoutUrl)
	default:
		err = fmt.Errorf("unknown payment gateway type")
	}
	if err != nil {
		return err
	}

	c.payments = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

// registryServices backs every configured external registry with an
// in-memory one.
func (c *Config) registryServices() {
	c.registries = make(map[string]ports.ExternalRegistry, len(c.ExternalRegistries))
	for _, name := range c.ExternalRegistries {
		c.registries[name] = inmemoryregistry.NewRegistry()
	}
}

func (c *Config) notifierService() {
	if c.NostrNotifyProfile == "" {
		return
	}
	c.notifier = nostr_notifier.New()
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		c.Custodian, c.PaymentTimeout, c.CollectionInterval,
		c.repo, c.payments, c.scheduler, c.registries,
		c.notifier, c.NostrNotifyProfile,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(homeDir, "."+appName)
}

func parseList(value string) []string {
	list := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
