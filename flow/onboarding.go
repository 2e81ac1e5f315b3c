package flow

import "time"

// Onboarding states, version 1.
const (
	StatePhoneEntered   State = "PHONE_ENTERED"
	StatePhoneVerified  State = "PHONE_VERIFIED"
	StateKYCPending     State = "KYC_PENDING"
	StateKYCApproved    State = "KYC_APPROVED"
	StateKYCRejected    State = "KYC_REJECTED"
	StateAccountCreated State = "ACCOUNT_CREATED"
	StateAbandoned      State = "ABANDONED"
	StateManualReview   State = "MANUAL_REVIEW"
)

// Onboarding actions, version 1.
const (
	ActionVerifyOTP     Action = "VERIFY_OTP"
	ActionSubmitKYC     Action = "SUBMIT_KYC"
	ActionKYCResult     Action = "KYC_RESULT"
	ActionKYCReject     Action = "KYC_REJECT"
	ActionEscalate      Action = "ESCALATE"
	ActionApproveManual Action = "APPROVE_MANUAL"
	ActionOpenAccount   Action = "OPEN_ACCOUNT"
)

// OnboardingVersion is the version key of the built-in customer
// onboarding definition.
const OnboardingVersion = "onboarding.v1"

// Onboarding returns the built-in customer onboarding flow: phone
// verification, KYC screening with an asynchronous provider callback, a
// manual-review escape hatch, and account creation. Waiting states carry
// dwell timeouts that abandon stale journeys.
func Onboarding() *Definition {
	return &Definition{
		Version: OnboardingVersion,
		Initial: StatePhoneEntered,
		States: []State{
			StatePhoneEntered,
			StatePhoneVerified,
			StateKYCPending,
			StateKYCApproved,
			StateKYCRejected,
			StateManualReview,
			StateAccountCreated,
			StateAbandoned,
		},
		Terminal: []State{
			StateAccountCreated,
			StateKYCRejected,
			StateAbandoned,
		},
		Timeouts: map[State]time.Duration{
			StatePhoneEntered: 24 * time.Hour,
			StateKYCPending:   72 * time.Hour,
			StateManualReview: 7 * 24 * time.Hour,
		},
		Rules: []Rule{
			{
				From:          StatePhoneEntered,
				Action:        ActionVerifyOTP,
				To:            StatePhoneVerified,
				AllowedActors: []Actor{ActorUser},
				MaxRetry:      3,
			},
			{
				From:          StatePhoneEntered,
				Action:        ActionRetry,
				To:            StatePhoneEntered,
				AllowedActors: []Actor{ActorSystem},
				MaxRetry:      3,
			},
			{
				From:          StatePhoneEntered,
				Action:        ActionTimeout,
				To:            StateAbandoned,
				AllowedActors: []Actor{ActorSystem},
			},
			{
				From:          StatePhoneVerified,
				Action:        ActionSubmitKYC,
				To:            StateKYCPending,
				Async:         true,
				AllowedActors: []Actor{ActorUser},
				MaxRetry:      5,
				Conditions:    []string{"otp_verified == true"},
			},
			{
				From:          StatePhoneVerified,
				Action:        ActionRetry,
				To:            StatePhoneVerified,
				AllowedActors: []Actor{ActorSystem},
				MaxRetry:      5,
			},
			{
				From:          StateKYCPending,
				Action:        ActionKYCResult,
				To:            StateKYCApproved,
				AllowedActors: []Actor{ActorCallback, ActorSystem},
				Conditions:    []string{"kyc_score >= 70"},
			},
			{
				From:          StateKYCPending,
				Action:        ActionKYCReject,
				To:            StateKYCRejected,
				AllowedActors: []Actor{ActorCallback, ActorSystem},
			},
			{
				From:          StateKYCPending,
				Action:        ActionEscalate,
				To:            StateManualReview,
				AllowedActors: []Actor{ActorAdmin, ActorSystem},
			},
			{
				From:          StateKYCPending,
				Action:        ActionRetry,
				To:            StateKYCPending,
				AllowedActors: []Actor{ActorSystem},
				MaxRetry:      5,
			},
			{
				From:          StateKYCPending,
				Action:        ActionTimeout,
				To:            StateManualReview,
				AllowedActors: []Actor{ActorSystem},
			},
			{
				From:          StateManualReview,
				Action:        ActionApproveManual,
				To:            StateKYCApproved,
				AllowedActors: []Actor{ActorAdmin},
			},
			{
				From:          StateManualReview,
				Action:        ActionKYCReject,
				To:            StateKYCRejected,
				AllowedActors: []Actor{ActorAdmin},
			},
			{
				From:          StateManualReview,
				Action:        ActionTimeout,
				To:            StateKYCRejected,
				AllowedActors: []Actor{ActorSystem},
			},
			{
				From:          StateKYCApproved,
				Action:        ActionOpenAccount,
				To:            StateAccountCreated,
				AllowedActors: []Actor{ActorUser, ActorSystem},
				MaxRetry:      3,
			},
			{
				From:          StateKYCApproved,
				Action:        ActionRetry,
				To:            StateKYCApproved,
				AllowedActors: []Actor{ActorSystem},
				MaxRetry:      3,
			},
		},
	}
}
