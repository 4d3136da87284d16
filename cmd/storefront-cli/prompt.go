package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/settlement"
)

// prompt запрашивает у пользователя подтверждения и данные оплаты в терминале.
// Пустой ввод вместо идентификатора платежа означает закрытие окна оплаты.
type prompt struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompt(in io.Reader, out io.Writer) *prompt {
	return &prompt{in: bufio.NewScanner(in), out: out}
}

func (p *prompt) ask(question string) string {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		return ""
	}
	return strings.TrimSpace(p.in.Text())
}

// ConfirmShortfall спрашивает согласие оплатить полную сумму через шлюз.
func (p *prompt) ConfirmShortfall(_ context.Context, balance, amount model.Money) (bool, error) {
	answer := p.ask(fmt.Sprintf("Wallet balance ₹%s is less than ₹%s. Pay the full ₹%s through the payment gateway? [y/N]: ",
		balance, amount, amount))
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes"), nil
}

// Open выводит параметры заказа шлюза и читает ответ виджета оплаты.
func (p *prompt) Open(_ context.Context, order client.GatewayOrder) (settlement.GatewayResult, error) {
	fmt.Fprintf(p.out, "Gateway order %s: %s %.2f (key %s)\n",
		order.OrderID, order.Currency, model.Money(order.Amount).Rupees(), order.KeyID)
	fmt.Fprintln(p.out, "Complete the payment in the checkout widget, then paste its response. Leave empty to cancel.")

	paymentID := p.ask("razorpay_payment_id: ")
	if paymentID == "" {
		return settlement.GatewayResult{}, settlement.ErrCheckoutDismissed
	}
	signature := p.ask("razorpay_signature: ")
	if signature == "" {
		return settlement.GatewayResult{}, settlement.ErrCheckoutDismissed
	}

	return settlement.GatewayResult{
		OrderID:   order.OrderID,
		PaymentID: paymentID,
		Signature: signature,
	}, nil
}
