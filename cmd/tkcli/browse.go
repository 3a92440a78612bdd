package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tecnokaijin/storefront/internal/cart"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/money"
)

type browseModel struct {
	products []models.Product
	cart     *cart.Cart
	selected int
	category int
	status   string
}

func newBrowseModel(products []models.Product, c *cart.Cart) browseModel {
	return browseModel{products: products, cart: c, status: "Ready"}
}

func (m browseModel) categories() []string {
	return append([]string{"todas"}, models.Categories()...)
}

// visible returns the products of the selected category
func (m browseModel) visible() []models.Product {
	if m.category == 0 {
		return m.products
	}
	want := m.categories()[m.category]
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		if p.Category == want {
			out = append(out, p)
		}
	}
	return out
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	visible := m.visible()
	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(visible)-1 {
			m.selected++
		}
	case "left", "h":
		if m.category > 0 {
			m.category--
			m.selected = 0
		}
	case "right", "l":
		if m.category < len(m.categories())-1 {
			m.category++
			m.selected = 0
		}
	case "enter", "a":
		if len(visible) == 0 {
			return m, nil
		}
		p := visible[m.selected]
		if err := m.cart.Add(models.SnapshotOf(p), 1); err != nil {
			m.status = fmt.Sprintf("Could not add %s: %v", p.Name, err)
		} else {
			m.status = fmt.Sprintf("Added %s", p.Name)
		}
	case "x":
		if len(visible) == 0 {
			return m, nil
		}
		p := visible[m.selected]
		if err := m.cart.Remove(p.ID); err != nil {
			m.status = fmt.Sprintf("Could not remove %s: %v", p.Name, err)
		} else {
			m.status = fmt.Sprintf("Removed %s", p.Name)
		}
	}
	return m, nil
}

func (m browseModel) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "TecnoKaijin")
	fmt.Fprintln(b, "")

	cats := m.categories()
	for i, c := range cats {
		if i == m.category {
			fmt.Fprintf(b, "[%s] ", c)
		} else {
			fmt.Fprintf(b, " %s  ", c)
		}
	}
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "")

	visible := m.visible()
	if len(visible) == 0 {
		fmt.Fprintln(b, "  (no products)")
	}
	for i, p := range visible {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		inCart := ""
		if item, ok := m.cart.Get(p.ID); ok {
			inCart = fmt.Sprintf("  [%d in cart]", item.Quantity)
		}
		fmt.Fprintf(b, " %s %-28s %12s  stock %3d%s\n", marker, p.Name, money.Format(p.Price), p.Stock, inCart)
	}

	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Cart: %d items, %s\n", m.cart.Count(), money.Format(m.cart.Total()))
	fmt.Fprintf(b, "Status: %s\n", m.status)
	fmt.Fprintln(b, "\nControls: up/down select product, left/right category, enter add, x remove, q quit")
	return b.String()
}

func cmdBrowse(ctx context.Context, a *cli, args []string) error {
	products, err := a.api.Products(ctx, nil)
	if err != nil {
		return err
	}
	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	p := tea.NewProgram(newBrowseModel(products, c))
	_, err = p.Run()
	return err
}
