package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

// Delivery задаёт адрес доставки заказа: адрес из адресной книги или адрес строкой.
// Если оба пусты, используется адрес по умолчанию.
type Delivery struct {
	AddressID string
	Address   string
}

// ListAddresses возвращает адресную книгу пользователя.
func (s *Service) ListAddresses(ctx context.Context, userID string) ([]model.Address, error) {
	return s.repo.ListAddresses(ctx, userID)
}

// AddAddress добавляет адрес в адресную книгу пользователя.
func (s *Service) AddAddress(ctx context.Context, userID string, a model.Address) (*model.Address, error) {
	a.ID = ""
	a.UserID = userID
	created, err := s.repo.CreateAddress(ctx, a)
	if err != nil {
		return nil, err
	}
	s.logger.Info("address added", zap.String("userID", userID), zap.String("addressID", created.ID), zap.Bool("default", created.IsDefault))
	return created, nil
}

// SetDefaultAddress делает адрес адресом по умолчанию.
func (s *Service) SetDefaultAddress(ctx context.Context, userID, id string) (*model.Address, error) {
	return s.repo.SetDefaultAddress(ctx, userID, id)
}

func (s *Service) shipping(ctx context.Context, userID string, d Delivery) (repository.Shipping, error) {
	if d.AddressID != "" {
		a, err := s.repo.GetAddress(ctx, userID, d.AddressID)
		if err != nil {
			return repository.Shipping{}, err
		}
		return repository.Shipping{AddressID: &a.ID, Address: a.String()}, nil
	}

	if text := strings.TrimSpace(d.Address); text != "" {
		return repository.Shipping{Address: text}, nil
	}

	a, err := s.repo.GetDefaultAddress(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Shipping{}, ErrAddressRequired
	}
	if err != nil {
		return repository.Shipping{}, err
	}
	return repository.Shipping{AddressID: &a.ID, Address: a.String()}, nil
}
