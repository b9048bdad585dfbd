package domain

import "time"

type User struct {
	UserID       string  `json:"id" dynamodbav:"user_id"`
	Username     string  `json:"username" dynamodbav:"username"`
	Email        string  `json:"email" dynamodbav:"email"`
	Phone        *string `json:"phone" dynamodbav:"phone"`
	PasswordHash string  `json:"-" dynamodbav:"password_hash"`
	Role         string  `json:"role" dynamodbav:"role"`
	FullName     string  `json:"full_name" dynamodbav:"full_name"`

	// Notification delivery preferences. PushSubscription is the opaque
	// descriptor returned by the push service (an FCM registration token);
	// it is persisted so server-initiated pushes can reach the user with no
	// page open.
	BrowserNotificationsEnabled bool    `json:"browser_notifications_enabled" dynamodbav:"browser_notifications_enabled"`
	PushNotificationsEnabled    bool    `json:"push_notifications_enabled" dynamodbav:"push_notifications_enabled"`
	PushSubscription            *string `json:"-" dynamodbav:"push_subscription"`

	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateUserRequest struct {
	Username string  `json:"username" validate:"required"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Email    string  `json:"email" validate:"required,email"`
	Phone    *string `json:"phone"`
	FullName string  `json:"full_name" validate:"required"`
}

type UpdateUserRequest struct {
	Email                       *string `json:"email" validate:"omitempty,email"`
	Phone                       *string `json:"phone"`
	FullName                    *string `json:"full_name"`
	BrowserNotificationsEnabled *bool   `json:"browser_notifications_enabled"`
}
