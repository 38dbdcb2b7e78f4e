package config

const redacted = "***"

// Redacted returns a copy of cfg safe to log: secret fields are replaced
// with "***" and the slices are copied so the original cannot be mutated
// through the result.
func Redacted(cfg *Config) Config {
	out := *cfg

	for _, s := range []*string{
		&out.Wallet.PrivateKey,
		&out.Wallet.KeyPassword,
		&out.Postgres.DSN, // may embed a password
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	if cfg.Chains != nil {
		out.Chains = append([]ChainConfig(nil), cfg.Chains...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	return out
}
