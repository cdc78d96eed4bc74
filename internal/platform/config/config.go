package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultStorageBackend       = "gcs"
	defaultCountryCode          = "49"
	defaultDraftTTL             = 24 * time.Hour
	defaultPublicBaseURL        = "http://localhost:3000"
	defaultCurrency             = "eur"
	defaultActivationAmount     = 4900
	defaultEmailFrom            = "FitMarket <hello@fitmarket.example>"
	defaultPageCacheTTL         = 10 * time.Minute
	defaultRateLimitPublic      = 30
	defaultRateLimitWebhook     = 120
	defaultSecurityEnvironment  = "local"
	defaultHMACSignatureHeader  = "X-Signature"
	defaultHMACTimestampHeader  = "X-Signature-Timestamp"
	defaultHMACNonceHeader      = "X-Signature-Nonce"
	defaultHMACClockSkew        = 5 * time.Minute
	defaultHMACNonceTTL         = 5 * time.Minute
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PSP         PSPConfig
	Site        SiteConfig
	Email       EmailConfig
	Cache       CacheConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores the Firebase project used for back-office sign-in.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig selects the blob store holding blog posts and interviews.
// Backend "memory" keeps content in process, for local runs only.
type StorageConfig struct {
	Backend       string
	ContentBucket string
}

// PSPConfig holds Stripe credentials and the activation product.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	ActivationPriceID   string
	ActivationAmount    int64
	Currency            string
}

// SiteConfig carries values that shape public URLs and trainer data.
type SiteConfig struct {
	PublicBaseURL string
	CountryCode   string
	DraftTTL      time.Duration
}

// EmailConfig configures transactional e-mail. An empty API key disables sending.
type EmailConfig struct {
	ResendAPIKey string
	From         string
}

// CacheConfig wires downstream cache invalidation.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PageTTL       time.Duration
	PubSubTopic   string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	PublicPerMinute int
	WebhookBurst    int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	HMAC        HMACConfig
}

// HMACConfig captures signed-relay expectations.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError lists configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load assembles configuration from defaults, the .env file, the process
// environment, explicit maps, and Secret Manager references, in increasing
// order of precedence (secrets replace the reference they resolve).
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}
	env := lookup(values)

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(env.str("API_STORAGE_BACKEND", defaultStorageBackend)),
			ContentBucket: env.str("API_STORAGE_CONTENT_BUCKET", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:        env.str("API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			ActivationPriceID:   env.str("API_PSP_ACTIVATION_PRICE_ID", ""),
			ActivationAmount:    int64(env.integer("API_PSP_ACTIVATION_AMOUNT", defaultActivationAmount)),
			Currency:            strings.ToLower(env.str("API_PSP_CURRENCY", defaultCurrency)),
		},
		Site: SiteConfig{
			PublicBaseURL: strings.TrimRight(env.str("API_SITE_PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
			CountryCode:   strings.TrimPrefix(env.str("API_SITE_COUNTRY_CODE", defaultCountryCode), "+"),
			DraftTTL:      env.duration("API_SITE_DRAFT_TTL", defaultDraftTTL),
		},
		Email: EmailConfig{
			ResendAPIKey: env.str("API_EMAIL_RESEND_API_KEY", ""),
			From:         env.str("API_EMAIL_FROM", defaultEmailFrom),
		},
		Cache: CacheConfig{
			RedisAddr:     env.str("API_CACHE_REDIS_ADDR", ""),
			RedisPassword: env.str("API_CACHE_REDIS_PASSWORD", ""),
			RedisDB:       env.integer("API_CACHE_REDIS_DB", 0),
			PageTTL:       env.duration("API_CACHE_PAGE_TTL", defaultPageCacheTTL),
			PubSubTopic:   env.str("API_CACHE_PUBSUB_TOPIC", ""),
		},
		RateLimits: RateLimitConfig{
			PublicPerMinute: env.integer("API_RATELIMIT_PUBLIC_PER_MIN", defaultRateLimitPublic),
			WebhookBurst:    env.integer("API_RATELIMIT_WEBHOOK_BURST", defaultRateLimitWebhook),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			HMAC: HMACConfig{
				Secrets:         env.keyValues("API_SECURITY_HMAC_SECRETS"),
				SignatureHeader: env.str("API_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: env.str("API_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     env.str("API_SECURITY_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       env.duration("API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        env.duration("API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	targets := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Email.ResendAPIKey", &cfg.Email.ResendAPIKey},
		{"Cache.RedisPassword", &cfg.Cache.RedisPassword},
	}
	for key := range cfg.Security.HMAC.Secrets {
		value := cfg.Security.HMAC.Secrets[key]
		secret, err := resolveSecret(ctx, value, options.secret)
		if err != nil {
			return Config{}, err
		}
		cfg.Security.HMAC.Secrets[key] = secret
		resolved[fmt.Sprintf("Security.HMAC.Secrets[%s]", key)] = secret
	}
	for _, target := range targets {
		secret, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = secret
		resolved[target.name] = secret
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	switch cfg.Storage.Backend {
	case "gcs":
		if cfg.Storage.ContentBucket == "" {
			missing = append(missing, "Storage.ContentBucket")
		}
	case "memory":
		if cfg.Security.Environment != "local" {
			missing = append(missing, "Storage.Backend")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}
	if cfg.Site.CountryCode == "" || strings.Trim(cfg.Site.CountryCode, "0123456789") != "" {
		missing = append(missing, "Site.CountryCode")
	}
	if cfg.Site.DraftTTL <= 0 {
		missing = append(missing, "Site.DraftTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}
