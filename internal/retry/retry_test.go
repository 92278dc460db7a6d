package retry_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"meshforge.app/studio/internal/retry"
)

var _ = Describe("Run", func() {
	It("returns on first success without further attempts", func() {
		calls := 0
		result, err := retry.Run(context.Background(), 5, retry.Hooks{}, func(ctx context.Context, ac retry.AttemptContext) (string, error) {
			calls++
			return "ok", nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal("ok"))
		Expect(calls).To(Equal(1))
	})

	It("retries typed failures and succeeds on a later attempt", func() {
		calls := 0
		result, err := retry.Run(context.Background(), 3, retry.Hooks{}, func(ctx context.Context, ac retry.AttemptContext) (int, error) {
			calls++
			if calls < 3 {
				return 0, &retry.Failure{Kind: retry.FailureCompilation, Message: "syntax error"}
			}
			return 42, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(42))
		Expect(calls).To(Equal(3))
	})

	It("never exceeds the attempt budget", func() {
		calls := 0
		_, err := retry.Run(context.Background(), 2, retry.Hooks{}, func(ctx context.Context, ac retry.AttemptContext) (int, error) {
			calls++
			return 0, errors.New("always fails")
		})
		Expect(calls).To(Equal(2))

		var exhausted *retry.ExhaustedError
		Expect(errors.As(err, &exhausted)).To(BeTrue())
		Expect(exhausted.Attempts).To(Equal(2))
		Expect(exhausted.Error()).To(ContainSubstring("2"))
		Expect(exhausted.Error()).To(ContainSubstring("always fails"))
	})

	It("clamps maxAttempts to a minimum of one", func() {
		calls := 0
		_, err := retry.Run(context.Background(), 0, retry.Hooks{}, func(ctx context.Context, ac retry.AttemptContext) (int, error) {
			calls++
			Expect(ac.Attempt).To(Equal(1))
			Expect(ac.MaxAttempts).To(Equal(1))
			return 0, errors.New("nope")
		})
		Expect(calls).To(Equal(1))
		Expect(err).To(HaveOccurred())
	})

	It("numbers attempts contiguously from one and carries the last failure", func() {
		var contexts []retry.AttemptContext
		_, err := retry.Run(context.Background(), 3, retry.Hooks{}, func(ctx context.Context, ac retry.AttemptContext) (int, error) {
			contexts = append(contexts, ac)
			return 0, &retry.Failure{Kind: retry.FailureValidation, Message: "looks wrong"}
		})
		Expect(err).To(HaveOccurred())
		Expect(contexts).To(HaveLen(3))

		Expect(contexts[0].Attempt).To(Equal(1))
		Expect(contexts[0].LastFailure).To(BeNil())

		Expect(contexts[1].Attempt).To(Equal(2))
		Expect(contexts[1].LastFailure).NotTo(BeNil())
		Expect(contexts[1].LastFailure.Kind).To(Equal(retry.FailureValidation))

		Expect(contexts[2].Attempt).To(Equal(3))
		Expect(contexts[2].LastFailure.Message).To(Equal("looks wrong"))
	})

	It("invokes lifecycle hooks around each attempt", func() {
		var started, failed int
		hooks := retry.Hooks{
			OnAttemptStart:  func(ac retry.AttemptContext) { started++ },
			OnAttemptFailed: func(ac retry.AttemptContext, err error) { failed++ },
		}
		result, err := retry.Run(context.Background(), 3, hooks, func(ctx context.Context, ac retry.AttemptContext) (string, error) {
			if ac.Attempt < 2 {
				return "", errors.New("first fails")
			}
			return "done", nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal("done"))
		Expect(started).To(Equal(2))
		Expect(failed).To(Equal(1))
	})

	It("stops when the context is cancelled between attempts", func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := retry.Run(ctx, 5, retry.Hooks{}, func(ctx context.Context, ac retry.AttemptContext) (int, error) {
			calls++
			cancel()
			return 0, errors.New("fail then cancel")
		})
		Expect(calls).To(Equal(1))
		Expect(err).To(MatchError(context.Canceled))
	})
})
