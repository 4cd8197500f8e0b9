package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/models"
	"secondserve/notify"
)

type LocationInput struct {
	Coordinates []float64 `json:"coordinates" validate:"len=2"`
	Address     string    `json:"address" validate:"required,max=500"`
}

// CreateInput is what a donor submits for a new post.
type CreateInput struct {
	Title        string               `json:"title" validate:"required,max=200"`
	Description  string               `json:"description" validate:"max=2000"`
	FoodType     string               `json:"foodType" validate:"required,oneof=veg non-veg vegan mixed"`
	Quantity     string               `json:"quantity" validate:"required,max=100"`
	Servings     int                  `json:"servings" validate:"gt=0"`
	ExpiryTime   time.Time            `json:"expiryTime"`
	PickupWindow *models.PickupWindow `json:"pickupWindow"`
	Location     LocationInput        `json:"location"`
	Images       []models.Image       `json:"images" validate:"max=10"`
}

func (e *Engine) checkCreate(in CreateInput, now time.Time) error {
	if err := e.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return validationError(strings.Join(msgs, "; "))
		}
		return validationError(err.Error())
	}

	if in.ExpiryTime.IsZero() {
		return validationError("expiryTime is required")
	}
	if !in.ExpiryTime.After(now) {
		return validationError("expiryTime must be in the future")
	}
	lon, lat := in.Location.Coordinates[0], in.Location.Coordinates[1]
	if lon < -180 || lon > 180 {
		return validationError("longitude must be within [-180, 180]")
	}
	if lat < -90 || lat > 90 {
		return validationError("latitude must be within [-90, 90]")
	}
	if w := in.PickupWindow; w != nil && w.Start != nil && w.End != nil && w.Start.After(*w.End) {
		return validationError("pickupWindow start must not be after end")
	}
	return nil
}

func (e *Engine) create(ctx context.Context, donor primitive.ObjectID, in CreateInput) (*models.FoodPost, error) {
	now := e.now()
	if err := e.checkCreate(in, now); err != nil {
		return nil, err
	}

	code, qr, err := e.newCode()
	if err != nil {
		return nil, err
	}

	post := &models.FoodPost{
		ID:               primitive.NewObjectID(),
		Donor:            donor,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		FoodType:         in.FoodType,
		Quantity:         in.Quantity,
		Servings:         in.Servings,
		ExpiryTime:       in.ExpiryTime,
		PickupWindow:     in.PickupWindow,
		Location:         models.NewGeoPoint(in.Location.Coordinates[0], in.Location.Coordinates[1], in.Location.Address),
		Images:           append([]models.Image{}, in.Images...),
		Status:           models.StatusAvailable,
		Requests:         []models.PickupRequest{},
		VerificationCode: code,
		QRCodeURL:        qr,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := e.store.Create(ctx, post); err != nil {
		return nil, transient(err)
	}

	e.logger.Info("food post created",
		zap.String("foodId", post.ID.Hex()), zap.String("donor", donor.Hex()), zap.Int("servings", post.Servings))

	e.publisher.Publish(notify.BroadcastKey, notify.EventNewPost, map[string]interface{}{
		"food":     *post.Clone(),
		"location": post.Location.Coordinates,
	})
	return post, nil
}
