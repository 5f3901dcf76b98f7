/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT              = "5010"
	DEFAULT_OWNER             = "DBAMV"
	DEFAULT_TENANT_ID         = 4
	DEFAULT_RECENT_JOBS_LIMIT = 5
	DEFAULT_QUEUE_NAME        = "robo32_jobs"
	DEFAULT_MONITORING_PORT   = "5004"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"ROBO32_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"ROBO32_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"ROBO32_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"ROBO32_SERVER_DOMAIN"`
	Email     string `json:"email" envconfig:"ROBO32_SERVER_EMAIL"`
	CertDir   string `json:"cert_dir" envconfig:"ROBO32_SERVER_CERT_DIR"`
	Port      string `json:"port" envconfig:"ROBO32_SERVER_PORT"`
}

// AuditStoreConfig points at the MySQL/MariaDB database holding jobs and the audit ledger.
type AuditStoreConfig struct {
	Dns string `json:"dns" envconfig:"ROBO32_AUDIT_STORE_DNS"`
}

// PrimaryStoreConfig points at the Oracle database where entities are cloned.
type PrimaryStoreConfig struct {
	Dns            string `json:"dns" envconfig:"ROBO32_PRIMARY_STORE_DNS"`
	Owner          string `json:"owner" envconfig:"ROBO32_PRIMARY_STORE_OWNER"`
	MaxOpenConns   int    `json:"max_open_conns" envconfig:"ROBO32_PRIMARY_STORE_MAX_OPEN_CONNS"`
	AcquireRetries uint64 `json:"acquire_retries" envconfig:"ROBO32_PRIMARY_STORE_ACQUIRE_RETRIES"`
}

// TenantConfig fixes the operating tenant for the whole deployment.
type TenantConfig struct {
	ID          int64 `json:"id" envconfig:"ROBO32_TENANT_ID"`
	SkipContext bool  `json:"skip_context" envconfig:"ROBO32_TENANT_SKIP_CONTEXT"`
	AllTenants  bool  `json:"all_tenants" envconfig:"ROBO32_TENANT_ALL_TENANTS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"ROBO32_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"ROBO32_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	Enabled        bool   `json:"enabled" envconfig:"ROBO32_QUEUE_ENABLED"`
	Name           string `json:"name" envconfig:"ROBO32_QUEUE_NAME"`
	Concurrency    int    `json:"concurrency" envconfig:"ROBO32_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"ROBO32_QUEUE_MONITORING_PORT"`
}

// RateLimitConfig throttles the HTTP API per client. Leaving both values unset disables it.
type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"ROBO32_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"ROBO32_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"ROBO32_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"ROBO32_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string             `json:"project_name" envconfig:"ROBO32_PROJECT_NAME"`
	Server          ServerConfig       `json:"server"`
	AuditStore      AuditStoreConfig   `json:"audit_store"`
	PrimaryStore    PrimaryStoreConfig `json:"primary_store"`
	Tenant          TenantConfig       `json:"tenant"`
	Redis           RedisConfig        `json:"redis"`
	Queue           QueueConfig        `json:"queue"`
	Notification    Notification       `json:"notification"`
	RateLimit       RateLimitConfig    `json:"rate_limit"`
	RecentJobsLimit int                `json:"recent_jobs_limit" envconfig:"ROBO32_RECENT_JOBS_LIMIT"`
	EnableTelemetry bool               `json:"enable_telemetry" envconfig:"ROBO32_ENABLE_TELEMETRY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("robo32", &cnf)
	if err != nil {
		return err
	}

	// legacy switch kept for existing deployments
	if os.Getenv("ORA_SKIP_SET_EMPRESA") == "1" {
		cnf.Tenant.SkipContext = true
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called robo32.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Robo32"
	}

	cnf.AuditStore.Dns = strings.TrimSpace(cnf.AuditStore.Dns)
	cnf.PrimaryStore.Dns = strings.TrimSpace(cnf.PrimaryStore.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)

	if cnf.AuditStore.Dns == "" {
		log.Println("Error: Audit store DNS is empty. It's a required field.")
		return errors.New("audit store DNS is required")
	}

	if cnf.PrimaryStore.Dns == "" {
		log.Println("Error: Primary store DNS is empty. It's a required field.")
		return errors.New("primary store DNS is required")
	}

	if cnf.Queue.Enabled && cnf.Redis.Dns == "" {
		return errors.New("redis DNS is required when the job queue is enabled")
	}

	if cnf.Server.SSL && cnf.Server.CertDir == "" {
		cnf.Server.CertDir = "./certmagic"
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.PrimaryStore.Owner = strings.ToUpper(strings.TrimSpace(cnf.PrimaryStore.Owner))
	if cnf.PrimaryStore.Owner == "" {
		cnf.PrimaryStore.Owner = DEFAULT_OWNER
	}
	if cnf.PrimaryStore.MaxOpenConns <= 0 {
		cnf.PrimaryStore.MaxOpenConns = 5
	}
	if cnf.PrimaryStore.AcquireRetries == 0 {
		cnf.PrimaryStore.AcquireRetries = 3
	}

	if cnf.Tenant.ID == 0 {
		cnf.Tenant.ID = DEFAULT_TENANT_ID
	}
	if cnf.Tenant.SkipContext {
		log.Println("Warning: tenant context setup is disabled. Never run like this against production.")
	}

	if cnf.Queue.Name == "" {
		cnf.Queue.Name = DEFAULT_QUEUE_NAME
	}
	// The audit store admits one job at a time, more workers would only sit idle.
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 1
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	if cnf.RecentJobsLimit <= 0 {
		cnf.RecentJobsLimit = DEFAULT_RECENT_JOBS_LIMIT
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
