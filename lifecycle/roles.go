package lifecycle

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"secondserve/models"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   primitive.ObjectID
	UserType string
}

// DonorOps exposes only the operations a donor may perform.
type DonorOps struct {
	e     *Engine
	donor primitive.ObjectID
}

// CollectorOps exposes only the operations an NGO or volunteer may perform.
type CollectorOps struct {
	e         *Engine
	collector primitive.ObjectID
}

func (e *Engine) AsDonor(id Identity) (*DonorOps, error) {
	if id.UserType != models.UserTypeDonor {
		return nil, forbidden("Only donors can manage food posts")
	}
	return &DonorOps{e: e, donor: id.UserID}, nil
}

func (e *Engine) AsCollector(id Identity) (*CollectorOps, error) {
	if !models.IsCollector(id.UserType) {
		return nil, forbidden("Only NGOs and volunteers can pick up food")
	}
	return &CollectorOps{e: e, collector: id.UserID}, nil
}

func (d *DonorOps) Create(ctx context.Context, in CreateInput) (*models.FoodPost, error) {
	return d.e.create(ctx, d.donor, in)
}

func (d *DonorOps) Approve(ctx context.Context, postID, requester primitive.ObjectID) (*models.FoodPost, error) {
	return d.e.approve(ctx, d.donor, postID, requester)
}

func (d *DonorOps) Cancel(ctx context.Context, postID primitive.ObjectID) (*models.FoodPost, error) {
	return d.e.cancel(ctx, d.donor, postID)
}

func (d *DonorOps) Posts(ctx context.Context) ([]models.FoodPost, error) {
	posts, err := d.e.store.ListByDonor(ctx, d.donor)
	if err != nil {
		return nil, transient(err)
	}
	return posts, nil
}

func (c *CollectorOps) Request(ctx context.Context, postID primitive.ObjectID) (*models.FoodPost, error) {
	return c.e.request(ctx, c.collector, postID)
}

func (c *CollectorOps) Verify(ctx context.Context, postID primitive.ObjectID, code string) (*models.FoodPost, error) {
	return c.e.verify(ctx, c.collector, postID, code)
}

func (c *CollectorOps) Complete(ctx context.Context, postID primitive.ObjectID, in CompleteInput) (*models.FoodPost, error) {
	return c.e.complete(ctx, c.collector, postID, in)
}

func (c *CollectorOps) Pickups(ctx context.Context) ([]models.FoodPost, error) {
	posts, err := c.e.store.ListByAssignee(ctx, c.collector)
	if err != nil {
		return nil, transient(err)
	}
	return posts, nil
}
