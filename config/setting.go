package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type logLevel string

const (
	Debug logLevel = "debug"
	Info  logLevel = "info"
	Warn  logLevel = "warn"
	Error logLevel = "error"
	Fatal logLevel = "fatal"
)

type Module string

const (
	ModuleExtract   Module = "extract"
	ModuleChunk     Module = "chunk"
	ModuleIndex     Module = "index"
	ModuleRetriever Module = "retriever"
	ModuleQuery     Module = "query"
	ModuleCatalog   Module = "catalog"
	ModuleServer    Module = "server"
	ModuleSetting   Module = "setting"
)

type serverConfig struct {
	Port    int    `koanf:"port" validate:"required"`
	AppName string `koanf:"app_name" validate:"required"`
}

type pathsConfig struct {
	CorpusDir  string `koanf:"corpus_dir" validate:"required"`
	CleanedDir string `koanf:"cleaned_dir" validate:"required"`
	ChunksDir  string `koanf:"chunks_dir" validate:"required"`
	CatalogDB  string `koanf:"catalog_db" validate:"required"`
}

// chunkingConfig carries the token-budget and quality parameters of the
// chunking pipeline. AllowedTokens is derived, not configured.
type chunkingConfig struct {
	ModelMaxTokens    int  `koanf:"model_max_tokens" validate:"required,gt=0"`
	SafetyMargin      int  `koanf:"safety_margin" validate:"gte=0"`
	Overlap           int  `koanf:"overlap" validate:"gte=0"`
	MinTokensPerChunk int  `koanf:"min_tokens_per_chunk" validate:"required,gt=0"`
	MinCharLength     int  `koanf:"min_char_length" validate:"required,gt=0"`
	CheckpointEvery   int  `koanf:"checkpoint_every" validate:"required,gt=0"`
	Workers           int  `koanf:"workers" validate:"gte=0"`
	RequireSentences  bool `koanf:"require_sentences"`

	BoilerplatePatterns []string `koanf:"boilerplate_patterns"`
	MeaninglessPatterns []string `koanf:"meaningless_patterns"`
}

// AllowedTokens is the effective window size for the token windower.
func (c chunkingConfig) AllowedTokens() int {
	return c.ModelMaxTokens - c.SafetyMargin
}

type tokenizerConfig struct {
	Encoding     string `koanf:"encoding" validate:"required"`
	LenCacheSize int    `koanf:"len_cache_size" validate:"required,gt=0"`
}

type openaiConfig struct {
	Key            string `koanf:"key"`
	Model          string `koanf:"model" validate:"required"`
	EmbeddingModel string `koanf:"embedding_model" validate:"required"`
}

type indexHNSWConfig struct {
	MetricType     string `koanf:"metric_type" validate:"required"`
	M              int    `koanf:"m" validate:"required"`
	EfConstruction int    `koanf:"ef_construction" validate:"required"`
}

type milvusConfig struct {
	Address         string          `koanf:"address" validate:"required"`
	Collection      string          `koanf:"collection" validate:"required"`
	VectorDim       int             `koanf:"vector_dim" validate:"required,gt=0"`
	IndexHNSWConfig indexHNSWConfig `koanf:"index_hnsw_config"`
}

type s3Config struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
	UsePath   bool   `koanf:"use_path_style"`
}

type retrieverConfig struct {
	TopK int `koanf:"top_k" validate:"required,gt=0"`
}

type config struct {
	Server    serverConfig    `koanf:"server"`
	Paths     pathsConfig     `koanf:"paths"`
	Chunking  chunkingConfig  `koanf:"chunking"`
	Tokenizer tokenizerConfig `koanf:"tokenizer"`
	OpenAI    openaiConfig    `koanf:"openai"`
	Milvus    milvusConfig    `koanf:"milvus"`
	S3        s3Config        `koanf:"s3"`
	Retriever retrieverConfig `koanf:"retriever"`
	LogLevel  logLevel        `koanf:"log_level"`
}

var defaultConfig = config{
	Server: serverConfig{
		Port:    8000,
		AppName: "archrag",
	},
	Paths: pathsConfig{
		CorpusDir:  "dataset_pdfs",
		CleanedDir: "cleaned",
		ChunksDir:  "chunks",
		CatalogDB:  "archrag.db",
	},
	Chunking: chunkingConfig{
		ModelMaxTokens:    512,
		SafetyMargin:      12,
		Overlap:           60,
		MinTokensPerChunk: 50,
		MinCharLength:     100,
		CheckpointEvery:   1000,
		Workers:           0, // 0 = one per input file, capped at NumCPU
		RequireSentences:  true,
		BoilerplatePatterns: []string{
			`national building code.*`,
			`government of india.*`,
			`all rights reserved.*`,
			`bureau of indian standards.*`,
			`www\.wbdg\.org.*`,
			`^\s*table of contents\s*$`,
			`^\s*copyright.*$`,
			`^\s*page \d+ of \d+\s*$`,
			`^\s*confidential\s*$`,
			`^\s*proprietary\s*$`,
		},
		MeaninglessPatterns: []string{
			`^[0-9\.\s]+$`,
			`^[A-Z\s]+$`,
			`^\W+$`,
			`^.{1,3}$`,
		},
	},
	Tokenizer: tokenizerConfig{
		Encoding:     "cl100k_base",
		LenCacheSize: 5000,
	},
	OpenAI: openaiConfig{
		Key:            "",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
	},
	Milvus: milvusConfig{
		Address:    "localhost:19530",
		Collection: "architecture_chunks",
		VectorDim:  1536,
		IndexHNSWConfig: indexHNSWConfig{
			MetricType:     "COSINE",
			M:              16,
			EfConstruction: 200,
		},
	},
	S3: s3Config{
		Region: "us-east-1",
	},
	Retriever: retrieverConfig{
		TopK: 5,
	},
	LogLevel: Info,
}

var (
	Cfg  = defaultConfig
	once sync.Once
)

// Init loads configuration from the given YAML file (if present) and
// ARCHRAG_-prefixed environment variables over compiled defaults, then
// validates. Invalid window parameters are fatal: no component can make
// forward progress with them.
func Init(path string) error {
	var initErr error
	once.Do(func() {
		k := koanf.New(".")
		Cfg = defaultConfig

		if e := k.Load(file.Provider(path), yaml.Parser()); e != nil && !errors.Is(e, os.ErrNotExist) {
			initErr = fmt.Errorf("%v: load %s: %w", ModuleSetting, path, e)
			return
		}

		// env ARCHRAG_CHUNKING_OVERLAP -> chunking.overlap
		if e := k.Load(env.Provider("ARCHRAG_", ".", func(s string) string {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "ARCHRAG_")), "_", ".")
		}), nil); e != nil {
			initErr = fmt.Errorf("%v: load env: %w", ModuleSetting, e)
			return
		}

		if e := k.Unmarshal("", &Cfg); e != nil {
			initErr = fmt.Errorf("%v: unmarshal: %w", ModuleSetting, e)
			return
		}

		initErr = Validate()
	})
	return initErr
}

// Validate checks struct tags plus the windower invariants that tags cannot
// express: allowed_tokens > 0 and overlap < allowed_tokens.
func Validate() error {
	validate := validator.New()
	if err := validate.Struct(Cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("%v: config validation failed:", ModuleSetting))
			for _, e := range errs {
				sb.WriteString(fmt.Sprintf(" %s failed '%s' (value: %v);", e.Namespace(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("%s", sb.String())
		}
		return fmt.Errorf("%v: config validation failed: %w", ModuleSetting, err)
	}

	allowed := Cfg.Chunking.AllowedTokens()
	if allowed <= 0 {
		return fmt.Errorf("%v: allowed_tokens must be > 0 (model_max_tokens=%d, safety_margin=%d)",
			ModuleSetting, Cfg.Chunking.ModelMaxTokens, Cfg.Chunking.SafetyMargin)
	}
	if Cfg.Chunking.Overlap >= allowed {
		return fmt.Errorf("%v: overlap (%d) must be < allowed_tokens (%d)",
			ModuleSetting, Cfg.Chunking.Overlap, allowed)
	}
	return nil
}
