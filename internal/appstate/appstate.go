// Package appstate хранит состояние клиента витрины: сессию и корзину.
// Состояние читается из файла при запуске и записывается после каждого изменения.
package appstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/model"
)

// Session описывает вошедшего пользователя.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user,omitempty"`
}

// CartItem описывает позицию корзины.
type CartItem struct {
	ProductID int64       `json:"productId"`
	Name      string      `json:"name"`
	Price     model.Money `json:"price"`
	Image     string      `json:"image,omitempty"`
	Quantity  int         `json:"quantity"`
}

type snapshot struct {
	Session *Session   `json:"session,omitempty"`
	Cart    []CartItem `json:"cart"`
}

func (st snapshot) clone() snapshot {
	c := snapshot{Cart: slices.Clone(st.Cart)}
	if st.Session != nil {
		sess := *st.Session
		c.Session = &sess
	}
	return c
}

// Store хранит состояние клиента. Пустой путь означает хранение только в памяти.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	state snapshot
}

// Open создаёт Store и восстанавливает состояние из файла, если он существует.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{path: path, logger: logger}
	if err := s.hydrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) hydrate() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	var st snapshot
	if err := json.Unmarshal(data, &st); err != nil {
		// Повреждённый файл не должен мешать запуску.
		s.logger.Warn("state file is corrupted, starting empty", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	s.state = st
	return nil
}

// save записывает состояние на диск. Вызывается под s.mu.
func (s *Store) save(st snapshot) error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// mutate применяет fn к копии состояния и принимает её только после успешной записи.
func (s *Store) mutate(fn func(st *snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	fn(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Session возвращает текущую сессию.
func (s *Store) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Session == nil || s.state.Session.Token == "" {
		return Session{}, false
	}
	return *s.state.Session, true
}

// SignIn сохраняет сессию после входа.
func (s *Store) SignIn(sess Session) error {
	return s.mutate(func(st *snapshot) {
		st.Session = &sess
	})
}

// SignOut удаляет сессию и корзину.
func (s *Store) SignOut() error {
	return s.mutate(func(st *snapshot) {
		st.Session = nil
		st.Cart = nil
	})
}

// HandleAPIError сбрасывает сессию, если API ответил 401, и сообщает об этом.
func (s *Store) HandleAPIError(err error) bool {
	if !errors.Is(err, client.ErrUnauthorized) {
		return false
	}

	if serr := s.mutate(func(st *snapshot) { st.Session = nil }); serr != nil {
		s.logger.Error("clear session error", zap.Error(serr))
	}
	s.logger.Info("session expired, signed out")
	return true
}

// Cart возвращает копию корзины.
func (s *Store) Cart() []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Cart)
}

// AddToCart добавляет товар. Повторное добавление увеличивает количество.
func (s *Store) AddToCart(p model.Product, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	return s.mutate(func(st *snapshot) {
		if i := slices.IndexFunc(st.Cart, func(it CartItem) bool { return it.ProductID == p.ID }); i >= 0 {
			st.Cart[i].Quantity += quantity
			return
		}
		st.Cart = append(st.Cart, CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Quantity:  quantity,
		})
	})
}

// UpdateQuantity задаёт количество товара. Количество не больше нуля удаляет позицию.
func (s *Store) UpdateQuantity(productID int64, quantity int) error {
	return s.mutate(func(st *snapshot) {
		if quantity <= 0 {
			st.Cart = slices.DeleteFunc(st.Cart, func(it CartItem) bool { return it.ProductID == productID })
			return
		}
		if i := slices.IndexFunc(st.Cart, func(it CartItem) bool { return it.ProductID == productID }); i >= 0 {
			st.Cart[i].Quantity = quantity
		}
	})
}

// RemoveFromCart удаляет позицию.
func (s *Store) RemoveFromCart(productID int64) error {
	return s.UpdateQuantity(productID, 0)
}

// ClearCart очищает корзину, например после оформления заказа.
func (s *Store) ClearCart() error {
	return s.mutate(func(st *snapshot) {
		st.Cart = nil
	})
}

// Count возвращает общее количество товаров в корзине.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.state.Cart, func(it CartItem) int { return it.Quantity })
}

// Subtotal возвращает стоимость корзины.
func (s *Store) Subtotal() model.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.state.Cart, func(it CartItem) model.Money { return it.Price * model.Money(it.Quantity) })
}

// OrderLines возвращает позиции корзины для оформления заказа.
func (s *Store) OrderLines() []client.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.state.Cart, func(it CartItem, _ int) client.OrderLine {
		return client.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity}
	})
}
