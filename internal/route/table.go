// Package route はストアフロントと管理画面のルートテーブルを定義する。
package route

import (
	"strings"
)

// レイアウト名
const (
	PublicLayout = "PublicLayout"
	AdminLayout  = "AdminLayout"
)

// ルート名
const (
	NameHome           = "home"
	NameProducts       = "products"
	NameCart           = "cart"
	NameCheckout       = "checkout"
	NameLogin          = "login"
	NameUserOrders     = "user-orders"
	NameAdminLogin     = "admin-login"
	NameAdminDashboard = "admin-dashboard"
	NameAdminProducts  = "admin-products"
	NameAdminOrders    = "admin-orders"
	NameAdminSlots     = "admin-slots"
	NameAdminCustomers = "admin-customers"
	NameAdminSettings  = "admin-settings"
)

// Meta はルートノードのアクセス要件。
type Meta struct {
	RequiresAuth  bool
	RequiresAdmin bool
}

// Record はルートテーブルの1ノード。
// Pathは親からの相対パス（親がない場合は絶対パス）。Viewが空のノードはレイアウトのみを提供する。
type Record struct {
	Path     string
	Name     string
	View     string
	Layout   string
	Meta     Meta
	Children []Record
}

// Leaf は遷移先となるルートを完全パス付きで表す。
type Leaf struct {
	FullPath string
	Record   Record
	// Chain はレイアウトからリーフまでのマッチしたレコード。
	Chain []Record
}

// Table はルートテーブル。
type Table struct {
	roots  []Record
	leaves []Leaf
	byName map[string]string
}

// NewTable はルートレコードからTableを生成する。
func NewTable(roots []Record) *Table {
	t := &Table{roots: roots, byName: make(map[string]string)}
	for _, r := range roots {
		t.collect(r, "", nil)
	}
	return t
}

// DefaultTable はストアフロントのルートテーブルを返す。
func DefaultTable() *Table {
	return NewTable([]Record{
		{
			Path:   "/",
			Layout: PublicLayout,
			Children: []Record{
				{Path: "", Name: NameHome, View: "HomeView"},
				{Path: "products", Name: NameProducts, View: "HomeView"},
				{Path: "cart", Name: NameCart, View: "CartView"},
				{Path: "checkout", Name: NameCheckout, View: "CheckoutView"},
				{Path: "login", Name: NameLogin, View: "LoginView"},
			},
		},
		{
			Path:   "/account",
			Layout: PublicLayout,
			Meta:   Meta{RequiresAuth: true},
			Children: []Record{
				{Path: "orders", Name: NameUserOrders, View: "UserOrdersView"},
			},
		},
		{Path: "/admin/login", Name: NameAdminLogin, View: "AdminLoginView"},
		{
			Path:   "/admin",
			Layout: AdminLayout,
			Meta:   Meta{RequiresAuth: true, RequiresAdmin: true},
			Children: []Record{
				{Path: "dashboard", Name: NameAdminDashboard, View: "AdminDashboardView"},
				{Path: "products", Name: NameAdminProducts, View: "AdminProductsView"},
				{Path: "orders", Name: NameAdminOrders, View: "AdminOrdersView"},
				{Path: "slots", Name: NameAdminSlots, View: "AdminSlotsView"},
				{Path: "customers", Name: NameAdminCustomers, View: "AdminCustomersView"},
				{Path: "settings", Name: NameAdminSettings, View: "AdminSettingsView"},
			},
		},
	})
}

func (t *Table) collect(r Record, parent string, chain []Record) {
	full := join(parent, r.Path)
	chain = append(append([]Record(nil), chain...), r)

	if len(r.Children) == 0 {
		t.leaves = append(t.leaves, Leaf{FullPath: full, Record: r, Chain: chain})
		if r.Name != "" {
			t.byName[r.Name] = full
		}
		return
	}
	for _, child := range r.Children {
		t.collect(child, full, chain)
	}
}

// Match はパスに一致するレコードの連鎖（レイアウト、リーフの順）を返す。
// 末尾のスラッシュは無視する。一致しない場合はnil, falseを返す。
func (t *Table) Match(path string) ([]Record, bool) {
	path = Normalize(path)
	for _, l := range t.leaves {
		if l.FullPath == path {
			return l.Chain, true
		}
	}
	return nil, false
}

// Flatten は全リーフを宣言順に返す。
func (t *Table) Flatten() []Leaf {
	out := make([]Leaf, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// Resolve はルート名からパスを返す。
func (t *Table) Resolve(name string) (string, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Requirements はマッチした連鎖全体のアクセス要件の和を返す。
func Requirements(chain []Record) Meta {
	var m Meta
	for _, r := range chain {
		m.RequiresAuth = m.RequiresAuth || r.Meta.RequiresAuth
		m.RequiresAdmin = m.RequiresAdmin || r.Meta.RequiresAdmin
	}
	return m
}

// Normalize はパスを先頭スラッシュ付き、末尾スラッシュなしの形に揃える。
func Normalize(path string) string {
	path = strings.TrimRight(path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func join(parent, child string) string {
	if strings.HasPrefix(child, "/") || parent == "" {
		return Normalize(child)
	}
	if child == "" {
		return Normalize(parent)
	}
	return Normalize(strings.TrimRight(parent, "/") + "/" + child)
}
