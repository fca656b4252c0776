package catalog

import "time"

// Product is the item stored in the products table. stock_quantity is owned by the
// inventory guard once the product is listed.
type Product struct {
	ProductID     string    `dynamodbav:"product_id" json:"product_id"` // PK
	Name          string    `dynamodbav:"name" json:"name"`
	Price         int64     `dynamodbav:"price" json:"price"`
	ImageURL      string    `dynamodbav:"image_url,omitempty" json:"image_url,omitempty"`
	StockQuantity int64     `dynamodbav:"stock_quantity" json:"stock_quantity"`
	UpdatedAt     time.Time `dynamodbav:"updated_at" json:"updated_at"`
}
