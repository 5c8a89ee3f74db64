// Package config loads the walletd JSON configuration: storage and queue
// drivers, chain registry location, custody and authorization service
// credentials, Safe deployment polling and native keystore settings.
// Secrets may be supplied directly or through the *_env indirection.
package config
