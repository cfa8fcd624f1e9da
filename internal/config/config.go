package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"interior"`
	DBPath     string `env:"DBPath" envDefault:"datas/interior.db"`
	DBPort     string `env:"DBPort" envDefault:"3306"`

	// 账本后端：gorm 复用上面的数据库连接，pgx 直连 PostgreSQL
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"gorm"`
	LedgerPGURL   string `env:"LEDGER_PG_URL" envDefault:""`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/images"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// fal.ai 队列接口
	FalAPIKey         string        `env:"FAL_KEY" envDefault:""`
	FalQueueBaseURL   string        `env:"FAL_QUEUE_BASE_URL" envDefault:"https://queue.fal.run"`
	FalModel          string        `env:"FAL_MODEL" envDefault:"fal-ai/flux/dev/image-to-image"`
	FalInferenceSteps int           `env:"FAL_INFERENCE_STEPS" envDefault:"28"`
	FalGuidanceScale  float64       `env:"FAL_GUIDANCE_SCALE" envDefault:"3.5"`
	FalImageSize      string        `env:"FAL_IMAGE_SIZE" envDefault:"landscape_4_3"`
	ProviderTimeout   time.Duration `env:"PROVIDER_ATTEMPT_TIMEOUT" envDefault:"15s"`

	// 轮询防死循环
	PollMaxCount      int           `env:"POLL_MAX_COUNT" envDefault:"50"`
	PollMaxElapsed    time.Duration `env:"POLL_MAX_ELAPSED" envDefault:"180s"`
	PollGuardCapacity int           `env:"POLL_GUARD_CAPACITY" envDefault:"10000"`

	// 匿名试用限流
	RateLimitBackend   string `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	RedisURL           string `env:"REDIS_URL" envDefault:""`
	TrialMaxRequests   int    `env:"TRIAL_MAX_REQUESTS" envDefault:"1"`
	TrialWindowSeconds int    `env:"TRIAL_WINDOW_SECONDS" envDefault:"86400"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY" envDefault:""`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" envDefault:""`
	StripeHDPriceID     string `env:"STRIPE_HD_PRICE_ID" envDefault:""`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/checkout/success"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/checkout/cancel"`
	// price_id:credits，逗号分隔
	CreditPriceTable string `env:"CREDIT_PRICE_TABLE" envDefault:""`

	SignupBonusCredits      int64 `env:"SIGNUP_BONUS_CREDITS" envDefault:"1"`
	RefundFailedGenerations bool  `env:"REFUND_FAILED_GENERATIONS" envDefault:"false"`
	// 完成后把服务商的输出图转存到自有存储
	RehostOutputs  bool `env:"REHOST_OUTPUTS" envDefault:"false"`
	SweepBatchSize int  `env:"SWEEP_BATCH_SIZE" envDefault:"100"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"interior-app"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
}

func ParseConfig() (Config, error) {
	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	if _, err := ParsePriceTable(Conf.CreditPriceTable); err != nil {
		logrus.WithError(err).Error("invalid CREDIT_PRICE_TABLE")
		return Config{}, err
	}
	return Conf, nil
}

// ParsePriceTable 解析 "price_a:10,price_b:50" 形式的价格到积分映射。
func ParsePriceTable(raw string) (map[string]int64, error) {
	table := make(map[string]int64)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		priceID, credits, ok := strings.Cut(item, ":")
		priceID = strings.TrimSpace(priceID)
		if !ok || priceID == "" {
			return nil, fmt.Errorf("price table entry %q: expected price_id:credits", item)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(credits), 10, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("price table entry %q: credits must be a positive integer", item)
		}
		table[priceID] = amount
	}
	return table, nil
}
