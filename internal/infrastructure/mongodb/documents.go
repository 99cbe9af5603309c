package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
)

type productDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Price     float64            `bson:"price"`
	Stock     int                `bson:"stock"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d productDocument) toDomain() *product.Product {
	return &product.Product{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Price:     d.Price,
		Stock:     d.Stock,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type orderDocument struct {
	ID              primitive.ObjectID `bson:"_id"`
	Product         primitive.ObjectID `bson:"product"`
	Quantity        int                `bson:"quantity"`
	PriceAtPurchase float64            `bson:"priceAtPurchase"`
	Status          string             `bson:"status"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func newOrderDocument(o *order.Order) (orderDocument, error) {
	id, err := primitive.ObjectIDFromHex(o.ID)
	if err != nil {
		return orderDocument{}, err
	}
	productID, err := primitive.ObjectIDFromHex(o.ProductID)
	if err != nil {
		return orderDocument{}, err
	}
	return orderDocument{
		ID:              id,
		Product:         productID,
		Quantity:        o.Quantity,
		PriceAtPurchase: o.PriceAtPurchase,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}, nil
}

func (d orderDocument) toDomain() *order.Order {
	return &order.Order{
		ID:              d.ID.Hex(),
		ProductID:       d.Product.Hex(),
		Quantity:        d.Quantity,
		PriceAtPurchase: d.PriceAtPurchase,
		Status:          order.Status(d.Status),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

// ObjectIDGenerator issues ids that are valid document keys for this store.
type ObjectIDGenerator struct{}

func (ObjectIDGenerator) NewID() string { return primitive.NewObjectID().Hex() }
