package lifecycle

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/models"
	"secondserve/notify"
	"secondserve/stats"
)

// CompleteInput is the optional evidence a collector attaches on handoff.
type CompleteInput struct {
	ProofPhoto *models.Image `json:"proofPhoto"`
	Notes      string        `json:"notes" validate:"max=1000"`
}

func acceptingRequests(s models.FoodStatus) bool {
	return s == models.StatusAvailable || s == models.StatusRequested
}

func (e *Engine) request(ctx context.Context, collector, id primitive.ObjectID) (*models.FoodPost, error) {
	post, _, err := e.apply(ctx, id, func(p *models.FoodPost, now time.Time) ([]outbound, error) {
		if !acceptingRequests(p.Status) {
			return nil, conflict("This food is no longer available", p.Status)
		}
		if !p.ExpiryTime.After(now) {
			return nil, conflict("This food has expired", p.Status)
		}
		if p.RequestBy(collector) >= 0 {
			return nil, conflict("You have already requested this food", p.Status)
		}

		p.Requests = append(p.Requests, models.PickupRequest{
			User:        collector,
			RequestedAt: now,
			Status:      models.RequestPending,
		})
		p.Status = models.StatusRequested

		return []outbound{{
			channel: notify.ChannelKey(p.Donor),
			kind:    notify.EventPickupRequested,
			payload: map[string]interface{}{
				"foodId":    p.ID.Hex(),
				"foodTitle": p.Title,
				"requester": collector.Hex(),
				"message":   "New pickup request for your food",
			},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("pickup requested", zap.String("foodId", id.Hex()), zap.String("collector", collector.Hex()))
	return post, nil
}

func (e *Engine) approve(ctx context.Context, donor, id, requester primitive.ObjectID) (*models.FoodPost, error) {
	post, _, err := e.apply(ctx, id, func(p *models.FoodPost, now time.Time) ([]outbound, error) {
		if p.Donor != donor {
			return nil, forbidden("Only the donor can approve requests")
		}
		if !acceptingRequests(p.Status) {
			return nil, conflict("Food post is no longer open for approval", p.Status)
		}
		if !p.ExpiryTime.After(now) {
			return nil, conflict("This food has expired", p.Status)
		}
		idx := p.RequestBy(requester)
		if idx < 0 {
			return nil, notFound("Request not found")
		}
		if p.Requests[idx].Status != models.RequestPending {
			return nil, conflict("Request is no longer pending", p.Status)
		}

		var events []outbound
		for i := range p.Requests {
			if i == idx {
				p.Requests[i].Status = models.RequestApproved
				continue
			}
			if p.Requests[i].Status == models.RequestPending {
				events = append(events, outbound{
					channel: notify.ChannelKey(p.Requests[i].User),
					kind:    notify.EventPickupRejected,
					payload: map[string]interface{}{
						"foodId":  p.ID.Hex(),
						"message": "Another collector was selected for this pickup",
					},
				})
			}
			p.Requests[i].Status = models.RequestRejected
		}
		assignee := requester
		p.AssignedTo = &assignee
		p.Status = models.StatusAssigned

		approved := outbound{
			channel: notify.ChannelKey(requester),
			kind:    notify.EventPickupApproved,
			payload: map[string]interface{}{
				"foodId":           p.ID.Hex(),
				"foodTitle":        p.Title,
				"verificationCode": p.VerificationCode,
				"qrCodeUrl":        p.QRCodeURL,
				"message":          "Your pickup request was approved",
			},
		}
		return append([]outbound{approved}, events...), nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("pickup approved", zap.String("foodId", id.Hex()), zap.String("collector", requester.Hex()))
	return post, nil
}

func attemptKey(post, collector primitive.ObjectID) string {
	return post.Hex() + ":" + collector.Hex()
}

// verify checks and records failed attempts inside the transition so that
// the cap holds under the post's stripe lock.
func (e *Engine) verify(ctx context.Context, collector, id primitive.ObjectID, code string) (*models.FoodPost, error) {
	key := attemptKey(id, collector)

	post, _, err := e.apply(ctx, id, func(p *models.FoodPost, now time.Time) ([]outbound, error) {
		if e.attempts != nil && e.attempts.Exceeded(key) {
			return nil, &Error{Kind: KindTooManyAttempts, Message: "Too many failed verification attempts, try again later", Status: p.Status}
		}
		if p.AssignedTo == nil || *p.AssignedTo != collector {
			return nil, unauthorized("You are not assigned to this pickup", p.Status)
		}
		if p.Status != models.StatusAssigned {
			return nil, unauthorized("Pickup is not awaiting verification", p.Status)
		}
		if !codeMatches(p.VerificationCode, code) {
			if e.attempts != nil {
				e.attempts.Allow(key)
			}
			return nil, &Error{Kind: KindInvalidCode, Message: "Invalid verification code", Status: p.Status}
		}

		p.Status = models.StatusPickedUp
		return []outbound{{
			channel: notify.ChannelKey(p.Donor),
			kind:    notify.EventPickupVerified,
			payload: map[string]interface{}{
				"foodId":    p.ID.Hex(),
				"collector": collector.Hex(),
				"message":   "Food has been picked up",
			},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if e.attempts != nil {
		e.attempts.Reset(key)
	}

	e.logger.Info("pickup verified", zap.String("foodId", id.Hex()), zap.String("collector", collector.Hex()))
	e.record(ctx, post, stats.KindVerified, post.UpdatedAt)
	return post, nil
}

func (e *Engine) complete(ctx context.Context, collector, id primitive.ObjectID, in CompleteInput) (*models.FoodPost, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, validationError(err.Error())
	}

	post, _, err := e.apply(ctx, id, func(p *models.FoodPost, now time.Time) ([]outbound, error) {
		if p.AssignedTo == nil || *p.AssignedTo != collector {
			return nil, unauthorized("You are not assigned to this pickup", p.Status)
		}
		if p.Status != models.StatusPickedUp {
			return nil, conflict("Pickup has not been verified", p.Status)
		}

		completedAt := now
		p.Status = models.StatusCompleted
		p.CompletedAt = &completedAt
		if in.ProofPhoto != nil {
			photo := *in.ProofPhoto
			p.ProofPhoto = &photo
		}
		p.Notes = in.Notes

		return []outbound{{
			channel: notify.ChannelKey(p.Donor),
			kind:    notify.EventPickupCompleted,
			payload: map[string]interface{}{
				"foodId":  p.ID.Hex(),
				"message": "Your donation reached the people who needed it",
			},
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("pickup completed", zap.String("foodId", id.Hex()), zap.String("collector", collector.Hex()))
	e.record(ctx, post, stats.KindCompleted, *post.CompletedAt)
	return post, nil
}

// cancel is allowed until the food physically changes hands.
func (e *Engine) cancel(ctx context.Context, donor, id primitive.ObjectID) (*models.FoodPost, error) {
	post, _, err := e.apply(ctx, id, func(p *models.FoodPost, now time.Time) ([]outbound, error) {
		if p.Donor != donor {
			return nil, forbidden("Only the donor can cancel this post")
		}
		if p.Status.Terminal() || p.Status == models.StatusPickedUp {
			return nil, conflict("Food post can no longer be cancelled", p.Status)
		}

		payload := map[string]interface{}{
			"foodId":    p.ID.Hex(),
			"foodTitle": p.Title,
			"message":   "The donor cancelled this pickup",
		}
		var events []outbound
		if p.AssignedTo != nil {
			events = append(events, outbound{channel: notify.ChannelKey(*p.AssignedTo), kind: notify.EventPickupCancelled, payload: payload})
		}
		for _, user := range p.PendingRequesters() {
			events = append(events, outbound{channel: notify.ChannelKey(user), kind: notify.EventPickupCancelled, payload: payload})
		}

		p.Status = models.StatusCancelled
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("food post cancelled", zap.String("foodId", id.Hex()))
	return post, nil
}

// Expire moves an overdue available or requested post to expired. A post
// that is not yet due, or already past those states, is returned unchanged
// with expired set to false.
func (e *Engine) Expire(ctx context.Context, id primitive.ObjectID) (post *models.FoodPost, expired bool, err error) {
	post, expired, err = e.apply(ctx, id, func(p *models.FoodPost, now time.Time) ([]outbound, error) {
		if !acceptingRequests(p.Status) || p.ExpiryTime.After(now) {
			return nil, errSkip
		}

		payload := map[string]interface{}{
			"foodId":    p.ID.Hex(),
			"foodTitle": p.Title,
			"message":   "This food post has expired",
		}
		events := []outbound{{channel: notify.ChannelKey(p.Donor), kind: notify.EventPostExpired, payload: payload}}
		for _, user := range p.PendingRequesters() {
			events = append(events, outbound{channel: notify.ChannelKey(user), kind: notify.EventPostExpired, payload: payload})
		}

		p.Status = models.StatusExpired
		return events, nil
	})
	if err == nil && expired {
		e.logger.Info("food post expired", zap.String("foodId", id.Hex()))
	}
	return post, expired, err
}
