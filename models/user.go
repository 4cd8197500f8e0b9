package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	UserTypeDonor     = "donor"
	UserTypeNGO       = "ngo"
	UserTypeVolunteer = "volunteer"
)

// IsCollector reports whether userType may request and pick up food.
func IsCollector(userType string) bool {
	return userType == UserTypeNGO || userType == UserTypeVolunteer
}

type Rating struct {
	Average float64 `bson:"average" json:"average"`
	Count   int     `bson:"count" json:"count"`
}

type UserStats struct {
	TotalDonations int `bson:"totalDonations" json:"totalDonations"`
	TotalPickups   int `bson:"totalPickups" json:"totalPickups"`
	MealsServed    int `bson:"mealsServed" json:"mealsServed"`
}

// User mirrors the users collection owned by the account service. Only the
// fields read here are mapped.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	UserType     string             `bson:"userType" json:"userType"`
	Organization string             `bson:"organization,omitempty" json:"organization,omitempty"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Rating       Rating             `bson:"rating" json:"rating"`
	Stats        UserStats          `bson:"stats" json:"stats"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
}

// UserSummary is the donor card attached to discovery results.
type UserSummary struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Organization string  `json:"organization,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Rating       float64 `json:"rating"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:           u.ID.Hex(),
		Name:         u.Name,
		Organization: u.Organization,
		Phone:        u.Phone,
		Rating:       u.Rating.Average,
	}
}
