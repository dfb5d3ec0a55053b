package app

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/util"
	"github.com/dropDatabas3/tokencore/internal/validation"
)

// seedHashParams son los parámetros argon2id de los passwords en claro del seed.
var seedHashParams = password.Default

// SeedFile es el formato del YAML de seed.
//
//	realms:
//	  backend:
//	    clients:
//	      - id: admin-ui
//	        secret: s3cret
//	        grant_types: [password, refresh_token]
//	    users:
//	      - id: u-1
//	        username: admin
//	        password: changeme
type SeedFile struct {
	Realms map[string]RealmSeed `yaml:"realms"`
}

type RealmSeed struct {
	Clients []ClientSeed `yaml:"clients"`
	Users   []UserSeed   `yaml:"users"`
}

type ClientSeed struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Secret         string   `yaml:"secret"`
	GrantTypes     []string `yaml:"grant_types"`
	RedirectURIs   []string `yaml:"redirect_uris"`
	AllowPlainPKCE bool     `yaml:"allow_plain_pkce"`
	OrganizationID string   `yaml:"organization_id"`
	// Disabled en vez de Active para que el default sea habilitado.
	Disabled bool `yaml:"disabled"`
}

type UserSeed struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	// Password en claro o PasswordHash (PHC argon2id); si vienen ambos gana PasswordHash.
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Disabled     bool   `yaml:"disabled"`
}

// LoadSeedFile lee y parsea el YAML.
func LoadSeedFile(path string) (*SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	for name := range f.Realms {
		if _, err := types.ParseRealm(name); err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
	}
	return &f, nil
}

// SeedRealm upserta clients y usuarios en el store del realm.
func SeedRealm(ctx context.Context, st repository.Store, seed RealmSeed) (clients, users int, err error) {
	for _, cs := range seed.Clients {
		c, err := cs.toClient(st.Realm())
		if err != nil {
			return clients, users, err
		}
		if err := st.Clients().Save(ctx, c); err != nil {
			return clients, users, fmt.Errorf("client %s: %w", cs.ID, err)
		}
		logger.L().Debug("seed client", logger.ClientID(cs.ID), logger.Bool("confidential", c.Confidential), logger.String("secret", util.MaskSecret(cs.Secret)))
		clients++
	}
	for _, us := range seed.Users {
		u, err := us.toUser(st.Realm())
		if err != nil {
			return clients, users, err
		}
		if err := st.Users().Save(ctx, u); err != nil {
			return clients, users, fmt.Errorf("user %s: %w", us.Username, err)
		}
		users++
	}
	return clients, users, nil
}

func (cs ClientSeed) toClient(realm types.Realm) (*types.Client, error) {
	if !validation.ValidClientID(cs.ID) {
		return nil, fmt.Errorf("client %q: invalid id", cs.ID)
	}
	c := &types.Client{
		ID:             cs.ID,
		Name:           cs.Name,
		Realm:          realm,
		Confidential:   cs.Secret != "",
		AllowPlainPKCE: cs.AllowPlainPKCE,
		Active:         !cs.Disabled,
		OrganizationID: cs.OrganizationID,
	}
	for _, g := range cs.GrantTypes {
		gt, ok := types.ParseGrantType(g)
		if !ok {
			return nil, fmt.Errorf("client %s: unsupported grant %q", cs.ID, g)
		}
		c.GrantTypes = append(c.GrantTypes, gt)
	}
	for _, u := range cs.RedirectURIs {
		if !validation.ValidRedirectURI(u) {
			return nil, fmt.Errorf("client %s: invalid redirect_uri %q", cs.ID, u)
		}
		c.RedirectURIs = append(c.RedirectURIs, u)
	}
	if c.Confidential {
		salt, err := password.NewSalt()
		if err != nil {
			return nil, err
		}
		c.SecretSalt = salt
		c.SecretDigest = password.DigestSecret(cs.Secret, salt)
	}
	return c, nil
}

func (us UserSeed) toUser(realm types.Realm) (*types.User, error) {
	if us.ID == "" || us.Username == "" {
		return nil, fmt.Errorf("user %q: id and username are required", us.Username)
	}
	hash := us.PasswordHash
	if hash == "" {
		if us.Password == "" {
			return nil, fmt.Errorf("user %s: password or password_hash is required", us.Username)
		}
		var err error
		if hash, err = password.Hash(seedHashParams, us.Password); err != nil {
			return nil, err
		}
	}
	return &types.User{
		ID:           us.ID,
		Realm:        realm,
		Username:     us.Username,
		PasswordHash: hash,
		Enabled:      !us.Disabled,
	}, nil
}
