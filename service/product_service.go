package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kaspi-bot/infra"
	"kaspi-bot/model"
)

var ErrProductNotFound = errors.New("product not found")

// CatalogueSource 提供賣家在 Kaspi 上的商品目錄
type CatalogueSource interface {
	GetProducts(ctx context.Context, pageNumber, pageSize int) (*infra.ProductsPage, error)
}

// ProductService 管理追蹤商品清單（MongoDB products collection）
type ProductService struct {
	logger    zerolog.Logger
	mongoDB   *infra.MongoDB
	catalogue CatalogueSource // 可為 nil
}

func NewProductService(logger zerolog.Logger, mongoDB *infra.MongoDB, catalogue CatalogueSource) *ProductService {
	return &ProductService{
		logger:    logger.With().Str("service", "product").Logger(),
		mongoDB:   mongoDB,
		catalogue: catalogue,
	}
}

func (s *ProductService) collection() *mongo.Collection {
	return s.mongoDB.GetCollection(infra.CollectionProducts)
}

// Add 新增追蹤商品，同名商品視為更新連結與最低價
func (s *ProductService) Add(ctx context.Context, name, link string, minPrice *int64) (*model.Product, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"link":       link,
			"min_price":  minPrice,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"name":       name,
			"created_at": now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var product model.Product
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"name": name}, update, opts).Decode(&product)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert product: %w", err)
	}

	s.logger.Info().Str("name", name).Msg("追蹤商品已新增")
	return &product, nil
}

// List 取得全部追蹤商品，依名稱排序
func (s *ProductService) List(ctx context.Context) ([]model.Product, error) {
	cursor, err := s.collection().Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []model.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

// Delete 依 ID 刪除追蹤商品
func (s *ProductService) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid product id: %w", err)
	}

	result, err := s.collection().DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrProductNotFound
	}

	s.logger.Info().Str("id", id).Msg("追蹤商品已刪除")
	return nil
}

// SyncFromMarketplace 把賣家在 Kaspi 上的完整商品目錄同步進追蹤清單，
// 內部自動翻頁
func (s *ProductService) SyncFromMarketplace(ctx context.Context) (int, error) {
	if s.catalogue == nil {
		return 0, fmt.Errorf("catalogue source is not configured")
	}

	const pageSize = 100
	total := 0

	for page := 0; ; page++ {
		resp, err := s.catalogue.GetProducts(ctx, page, pageSize)
		if err != nil {
			return total, err
		}

		count, err := s.UpsertFromAPI(ctx, resp.Data)
		total += count
		if err != nil {
			return total, err
		}

		if page+1 >= resp.Meta.PageCount {
			break
		}
	}

	s.logger.Info().Int("count", total).Msg("商品目錄同步完成")
	return total, nil
}

// UpsertFromAPI 把 Kaspi 商品目錄同步進追蹤清單，只補 kaspi_id 與連結，
// 不動操作者自己設定的最低價
func (s *ProductService) UpsertFromAPI(ctx context.Context, products []infra.ProductResource) (int, error) {
	count := 0
	now := time.Now()

	for _, p := range products {
		if p.Attributes.Name == "" {
			continue
		}
		update := bson.M{
			"$set": bson.M{
				"kaspi_id":   p.ID,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"name":       p.Attributes.Name,
				"link":       p.Attributes.PrimaryLink,
				"created_at": now,
			},
		}
		_, err := s.collection().UpdateOne(ctx, bson.M{"name": p.Attributes.Name}, update, options.Update().SetUpsert(true))
		if err != nil {
			return count, fmt.Errorf("failed to sync product %q: %w", p.Attributes.Name, err)
		}
		count++
	}

	return count, nil
}

// TouchLastOrder 更新商品的最近成單時間，找不到同名商品時靜默略過
func (s *ProductService) TouchLastOrder(ctx context.Context, productName string, orderedAt time.Time) {
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"name": productName},
		bson.M{"$set": bson.M{"last_order_date": orderedAt, "updated_at": time.Now()}},
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", productName).Msg("更新最近成單時間失敗")
	}
}

// UpdateLastPrice 記錄比價結果
func (s *ProductService) UpdateLastPrice(ctx context.Context, id primitive.ObjectID, price int64) error {
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_price": price, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last price: %w", err)
	}
	return nil
}

// FindSleeping 找出超過 days 天沒有成單的商品
func (s *ProductService) FindSleeping(ctx context.Context, days int) ([]model.Product, error) {
	threshold := time.Now().AddDate(0, 0, -days)
	filter := bson.M{
		"$or": []bson.M{
			{"last_order_date": bson.M{"$lt": threshold}},
			{"last_order_date": nil, "created_at": bson.M{"$lt": threshold}},
		},
	}

	cursor, err := s.collection().Find(ctx, filter, options.Find().SetSort(bson.M{"last_order_date": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to find sleeping products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []model.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode sleeping products: %w", err)
	}
	return products, nil
}
