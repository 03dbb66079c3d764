package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product 是賣家追蹤中的商品，保存在 MongoDB 的 products collection
type Product struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty" doc:"商品ID"`
	Name          string             `json:"name" bson:"name" doc:"商品名稱"`
	Link          string             `json:"link,omitempty" bson:"link,omitempty" doc:"kaspi.kz 商品頁連結"`
	KaspiID       string             `json:"kaspi_id,omitempty" bson:"kaspi_id,omitempty" doc:"Kaspi 平台商品ID"`
	MinPrice      *int64             `json:"min_price,omitempty" bson:"min_price,omitempty" doc:"允許的最低售價"`
	LastPrice     *int64             `json:"last_price,omitempty" bson:"last_price,omitempty" doc:"最近一次同步到的售價"`
	LastOrderDate *time.Time         `json:"last_order_date,omitempty" bson:"last_order_date,omitempty" doc:"最近一次出單時間"`
	CreatedAt     *time.Time         `json:"created_at,omitempty" bson:"created_at,omitempty" doc:"建立時間"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty" bson:"updated_at,omitempty" doc:"更新時間"`
}
