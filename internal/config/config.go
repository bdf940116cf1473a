package config

import "time"

type Config interface {
	AppConfig
	ClientConfig
	AuthConfig
	StorageConfig
	LogConfig
	DevServerConfig
}

type AppConfig interface {
	GetAppName() string
	GetEnv() string
}

// ClientConfig describes how the POS client reaches the backend.
type ClientConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
}

// AuthConfig describes the auth surface of the backend and how the session pipeline talks to it.
type AuthConfig interface {
	GetCredentialMode() string // "body" (rotating refresh token in the body) or "cookie" (refresh cookie + CSRF)
	GetRefreshTimeout() time.Duration
	GetLoginPath() string
	GetRefreshPath() string
	GetLogoutPath() string
}

type StorageConfig interface {
	GetStoreDriver() string // "badger", "redis" or "memory"
	GetDataDir() string
	GetRedisURL() string
	GetStoreKeyPrefix() string
}

type LogConfig interface {
	GetLogLevel() string
	GetLogFormat() string
}

// DevServerConfig configures the development backend.
type DevServerConfig interface {
	GetDevServerPort() string
	GetDemoEmail() string
	GetDemoPassword() string
	GetDemoName() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetSigningKey() string
}

// Settings is the loaded configuration tree. Field tags map onto the YAML file and POS_ environment variables.
type Settings struct {
	App struct {
		Name string `koanf:"name"`
		Env  string `koanf:"env"`
	} `koanf:"app"`

	Client struct {
		BaseURL        string        `koanf:"base_url"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
	} `koanf:"client"`

	Auth struct {
		Mode           string        `koanf:"mode"`
		RefreshTimeout time.Duration `koanf:"refresh_timeout"`
		LoginPath      string        `koanf:"login_path"`
		RefreshPath    string        `koanf:"refresh_path"`
		LogoutPath     string        `koanf:"logout_path"`
	} `koanf:"auth"`

	Storage struct {
		Driver    string `koanf:"driver"`
		DataDir   string `koanf:"data_dir"`
		RedisURL  string `koanf:"redis_url"`
		KeyPrefix string `koanf:"key_prefix"`
	} `koanf:"storage"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	DevServer struct {
		Port            string        `koanf:"port"`
		Email           string        `koanf:"email"`
		Password        string        `koanf:"password"`
		Name            string        `koanf:"name"`
		AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
		RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
		SigningKey      string        `koanf:"signing_key"`
	} `koanf:"devserver"`
}

var _ Config = (*Settings)(nil)

func (s *Settings) GetAppName() string { return s.App.Name }

func (s *Settings) GetEnv() string {
	if s.App.Env == "" {
		return "DEV"
	}
	return s.App.Env
}

func (s *Settings) GetBaseURL() string                { return s.Client.BaseURL }
func (s *Settings) GetRequestTimeout() time.Duration  { return s.Client.RequestTimeout }
func (s *Settings) GetCredentialMode() string         { return s.Auth.Mode }
func (s *Settings) GetRefreshTimeout() time.Duration  { return s.Auth.RefreshTimeout }
func (s *Settings) GetLoginPath() string              { return s.Auth.LoginPath }
func (s *Settings) GetRefreshPath() string            { return s.Auth.RefreshPath }
func (s *Settings) GetLogoutPath() string             { return s.Auth.LogoutPath }
func (s *Settings) GetStoreDriver() string            { return s.Storage.Driver }
func (s *Settings) GetDataDir() string                { return s.Storage.DataDir }
func (s *Settings) GetRedisURL() string               { return s.Storage.RedisURL }
func (s *Settings) GetStoreKeyPrefix() string         { return s.Storage.KeyPrefix }
func (s *Settings) GetLogLevel() string               { return s.Log.Level }
func (s *Settings) GetLogFormat() string              { return s.Log.Format }
func (s *Settings) GetDevServerPort() string          { return s.DevServer.Port }
func (s *Settings) GetDemoEmail() string              { return s.DevServer.Email }
func (s *Settings) GetDemoPassword() string           { return s.DevServer.Password }
func (s *Settings) GetDemoName() string               { return s.DevServer.Name }
func (s *Settings) GetAccessTokenTTL() time.Duration  { return s.DevServer.AccessTokenTTL }
func (s *Settings) GetRefreshTokenTTL() time.Duration { return s.DevServer.RefreshTokenTTL }
func (s *Settings) GetSigningKey() string             { return s.DevServer.SigningKey }
