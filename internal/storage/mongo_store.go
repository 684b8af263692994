package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig настройки подключения к MongoDB
type MongoConfig struct {
	URI        string // например mongodb://localhost:27017
	Database   string
	Collection string
}

// MongoStore хранит чанки документами {_id, x, y, z, data, updated_at}
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	codec      *Codec
	logger     *logging.Logger
	ctxTimeout time.Duration
}

type chunkDocument struct {
	ID        string    `bson:"_id"`
	X         int       `bson:"x"`
	Y         int       `bson:"y"`
	Z         int       `bson:"z"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore подключается к MongoDB и проверяет соединение
func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "chunk_engine"
	}
	if cfg.Collection == "" {
		cfg.Collection = "chunks"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("не удалось проверить соединение с MongoDB: %w", err)
	}

	codec, err := NewCodec()
	if err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		codec:      codec,
		logger:     logging.GetStorageLogger(),
		ctxTimeout: 5 * time.Second,
	}, nil
}

// Load читает документ чанка
func (m *MongoStore) Load(pos vec.Vec3, c *chunk.Chunk) (chunk.LoadingResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()

	var doc chunkDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": string(Key(pos))}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chunk.LoadIOError, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		return chunk.LoadIOError, fmt.Errorf("ошибка чтения чанка %v: %w", pos, err)
	}

	if err := m.codec.Decode(doc.Data, pos, c); err != nil {
		return ResultOf(err), err
	}
	return chunk.LoadSuccess, nil
}

// Save заменяет документ чанка или вставляет новый
func (m *MongoStore) Save(c *chunk.Chunk) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()

	pos := c.Position()
	doc := chunkDocument{
		ID:        string(Key(pos)),
		X:         pos.X,
		Y:         pos.Y,
		Z:         pos.Z,
		Data:      m.codec.Encode(c),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v: %w", pos, err)
	}
	m.logger.Trace("Чанк %v сохранён в MongoDB (%d байт)", pos, len(doc.Data))
	return nil
}

// Close отключается от сервера
func (m *MongoStore) Close() error {
	m.codec.Close()
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
