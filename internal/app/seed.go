package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// catalogSeed — формат файла ORDERS_SEED_FILE.
type catalogSeed struct {
	Users []struct {
		UUID      string `json:"uuid"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	} `json:"users"`
	Items []struct {
		UUID        string          `json:"uuid"`
		Name        string          `json:"name"`
		Price       decimal.Decimal `json:"price"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
	} `json:"items"`
}

// SeedResult — сколько записей создано и сколько уже существовало.
type SeedResult struct {
	UsersCreated int
	ItemsCreated int
	Skipped      int
}

// seedCatalogFile загружает справочник из файла. Повторный запуск идемпотентен.
func seedCatalogFile(ctx context.Context, path string, users domain.UserRepository, items domain.ItemRepository, logger *log.Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	res, err := SeedCatalog(ctx, f, users, items)
	if err != nil {
		return fmt.Errorf("seed catalog from %s: %w", path, err)
	}
	logger.WithFields(log.Fields{
		"file":    path,
		"users":   res.UsersCreated,
		"items":   res.ItemsCreated,
		"skipped": res.Skipped,
	}).Info("catalog seeded")
	return nil
}

// SeedCatalog создаёт пользователей и товары из JSON; существующие записи пропускаются.
func SeedCatalog(ctx context.Context, r io.Reader, users domain.UserRepository, items domain.ItemRepository) (SeedResult, error) {
	var (
		seed catalogSeed
		res  SeedResult
	)

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return res, fmt.Errorf("decode seed: %w", err)
	}

	for i, u := range seed.Users {
		userID, err := uuid.Parse(u.UUID)
		if err != nil {
			return res, fmt.Errorf("users[%d]: invalid uuid %q", i, u.UUID)
		}
		password, err := hashPassword(u.Password)
		if err != nil {
			return res, fmt.Errorf("users[%d]: %w", i, err)
		}
		err = users.Create(ctx, domain.User{
			UUID:      userID.String(),
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			Password:  password,
		})
		switch {
		case errors.Is(err, domain.ErrCatalogConflict):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("users[%d]: %w", i, err)
		default:
			res.UsersCreated++
		}
	}

	for i, it := range seed.Items {
		itemID, err := uuid.Parse(it.UUID)
		if err != nil {
			return res, fmt.Errorf("items[%d]: invalid uuid %q", i, it.UUID)
		}
		if !it.Price.IsPositive() {
			return res, fmt.Errorf("items[%d]: price must be positive", i)
		}
		// Цена должна помещаться в NUMERIC(12,2) без округления.
		if !domain.AmountFits(it.Price) {
			return res, fmt.Errorf("items[%d]: price %s: %w", i, it.Price, domain.ErrAmountOutOfRange)
		}
		err = items.Create(ctx, domain.Item{
			UUID:        itemID.String(),
			Name:        it.Name,
			Price:       it.Price,
			Description: it.Description,
			Category:    it.Category,
		})
		switch {
		case errors.Is(err, domain.ErrCatalogConflict):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("items[%d]: %w", i, err)
		default:
			res.ItemsCreated++
		}
	}

	return res, nil
}

// hashPassword хранит пароль только как bcrypt-хеш; уже захешированные значения не трогает.
func hashPassword(password string) (string, error) {
	if password == "" || isBcryptHash(password) {
		return password, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
