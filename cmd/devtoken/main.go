// AngelaMos | 2026
// main.go

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/carterperez-dev/templates/access-control/internal/auth"
	"github.com/carterperez-dev/templates/access-control/internal/config"
)

func main() {
	var (
		keygen     = flag.Bool("keygen", false, "generate an ES256 key pair and exit")
		privateKey = flag.String("private", "keys/private.pem", "private key path")
		publicKey  = flag.String("public", "keys/public.pem", "public key path")
		userID     = flag.String("user", "", "subject of the minted token")
		role       = flag.String("role", "user", "role claim")
		ttl        = flag.Duration("ttl", time.Hour, "token lifetime")
		issuer     = flag.String("issuer", "access-control", "issuer claim")
		audience   = flag.String("audience", "access-control-api", "audience claim")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *keygen {
		if err := os.MkdirAll(filepath.Dir(*privateKey), 0o700); err != nil {
			logger.Error("create key directory", "error", err)
			os.Exit(1)
		}
		if err := auth.GenerateKeyPair(*privateKey, *publicKey); err != nil {
			logger.Error("generate key pair", "error", err)
			os.Exit(1)
		}
		logger.Info("key pair written", "private", *privateKey, "public", *publicKey)
		return
	}

	if *userID == "" {
		logger.Error("-user is required")
		os.Exit(2)
	}

	manager, err := auth.NewJWTManager(config.JWTConfig{
		PrivateKeyPath:    *privateKey,
		PublicKeyPath:     *publicKey,
		AccessTokenExpire: *ttl,
		Issuer:            *issuer,
		Audience:          *audience,
	})
	if err != nil {
		logger.Error("load keys", "error", err)
		os.Exit(1)
	}

	token, err := manager.CreateAccessToken(*userID, *role, *ttl)
	if err != nil {
		logger.Error("mint token", "error", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
