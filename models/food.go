package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FoodStatus string

const (
	StatusAvailable FoodStatus = "available"
	StatusRequested FoodStatus = "requested"
	StatusAssigned  FoodStatus = "assigned"
	StatusPickedUp  FoodStatus = "picked-up"
	StatusCompleted FoodStatus = "completed"
	StatusExpired   FoodStatus = "expired"
	StatusCancelled FoodStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s FoodStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

var FoodTypes = []string{"veg", "non-veg", "vegan", "mixed"}

type PickupRequest struct {
	User        primitive.ObjectID `bson:"user" json:"user"`
	RequestedAt time.Time          `bson:"requestedAt" json:"requestedAt"`
	Status      RequestStatus      `bson:"status" json:"status"`
}

type PickupWindow struct {
	Start *time.Time `bson:"start,omitempty" json:"start,omitempty"`
	End   *time.Time `bson:"end,omitempty" json:"end,omitempty"`
}

// GeoPoint is stored as GeoJSON so the 2dsphere index can serve $near.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"` // [longitude, latitude]
	Address     string    `bson:"address" json:"address"`
}

func NewGeoPoint(longitude, latitude float64, address string) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{longitude, latitude}, Address: address}
}

func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[0]
}

func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

type Image struct {
	URL      string `bson:"url" json:"url"`
	PublicID string `bson:"publicId,omitempty" json:"publicId,omitempty"`
}

type FoodPost struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Donor            primitive.ObjectID  `bson:"donor" json:"donor"`
	Title            string              `bson:"title" json:"title"`
	Description      string              `bson:"description,omitempty" json:"description,omitempty"`
	FoodType         string              `bson:"foodType" json:"foodType"`
	Quantity         string              `bson:"quantity" json:"quantity"`
	Servings         int                 `bson:"servings" json:"servings"`
	ExpiryTime       time.Time           `bson:"expiryTime" json:"expiryTime"`
	PickupWindow     *PickupWindow       `bson:"pickupWindow,omitempty" json:"pickupWindow,omitempty"`
	Location         GeoPoint            `bson:"location" json:"location"`
	Images           []Image             `bson:"images" json:"images"`
	Status           FoodStatus          `bson:"status" json:"status"`
	AssignedTo       *primitive.ObjectID `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	Requests         []PickupRequest     `bson:"requests" json:"requests"`
	VerificationCode string              `bson:"verificationCode" json:"-"`
	QRCodeURL        string              `bson:"qrCodeUrl,omitempty" json:"-"`
	CompletedAt      *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	ProofPhoto       *Image              `bson:"proofPhoto,omitempty" json:"proofPhoto,omitempty"`
	Notes            string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Version          int64               `bson:"version" json:"version"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// RequestBy returns the index of the request made by user, or -1.
func (f *FoodPost) RequestBy(user primitive.ObjectID) int {
	for i, r := range f.Requests {
		if r.User == user {
			return i
		}
	}
	return -1
}

// PendingRequesters lists users whose requests are still pending.
func (f *FoodPost) PendingRequesters() []primitive.ObjectID {
	var out []primitive.ObjectID
	for _, r := range f.Requests {
		if r.Status == RequestPending {
			out = append(out, r.User)
		}
	}
	return out
}

// Discoverable reports whether collectors may still find and request the post.
func (f *FoodPost) Discoverable(now time.Time) bool {
	return f.Status == StatusAvailable && f.ExpiryTime.After(now)
}

// Clone returns a deep copy so a transition can be prepared without
// touching the version that was read.
func (f *FoodPost) Clone() *FoodPost {
	c := *f
	if f.PickupWindow != nil {
		w := *f.PickupWindow
		c.PickupWindow = &w
	}
	c.Location.Coordinates = append([]float64(nil), f.Location.Coordinates...)
	c.Images = append([]Image(nil), f.Images...)
	c.Requests = append([]PickupRequest(nil), f.Requests...)
	if f.AssignedTo != nil {
		a := *f.AssignedTo
		c.AssignedTo = &a
	}
	if f.CompletedAt != nil {
		t := *f.CompletedAt
		c.CompletedAt = &t
	}
	if f.ProofPhoto != nil {
		p := *f.ProofPhoto
		c.ProofPhoto = &p
	}
	return &c
}
