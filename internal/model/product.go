package model

// Product はproductsテーブルのカタログレコードを表す。
// Priceは最小通貨単位（セント）で保持する。
type Product struct {
	ID        string
	Name      string
	Reference string
	Price     int64
	ImageURL  string
	Stock     int
}

// CartItem はカート内の1商品行を表す。
// 価格・名称・画像は追加時点の値を保持し、カタログの変更には追従しない。
type CartItem struct {
	ID        string
	Name      string
	Reference string
	Price     int64
	ImageURL  string
	Quantity  int
	MaxStock  int
}
