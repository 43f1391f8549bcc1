package aspects

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/contracts"
	"github.com/glimte/aopdemo/controller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var tookLine = regexp.MustCompile(`^controller\.UserController\.(\w+)\(\) took (\d+) ms$`)

func weaveUserController(t *testing.T, out *bytes.Buffer, options ...controller.Option) *aop.Proxy {
	t.Helper()
	dispatcher := aop.NewDispatcher().MustRegister(
		NewOrderingAspect(out, 3),
		NewControllerAspect(out, 1),
	)
	proxy, err := dispatcher.Weave(controller.NewUserController(options...))
	require.NoError(t, err)
	return proxy
}

func lines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func assertTook(t *testing.T, line, operation string) int {
	t.Helper()
	match := tookLine.FindStringSubmatch(line)
	require.NotNil(t, match, "unexpected line %q", line)
	assert.Equal(t, operation, match[1])
	ms, err := strconv.Atoi(match[2])
	require.NoError(t, err)
	return ms
}

func TestControllerAspect(t *testing.T) {
	ctx := context.Background()

	t.Run("Returning operation logs arguments, return value and cleanup", func(t *testing.T) {
		var out bytes.Buffer
		proxy := weaveUserController(t, &out)

		result, err := proxy.Invoke(ctx, "UserListAfterReturning")

		require.NoError(t, err)
		assert.Equal(t, "Testing after-returning advice (OK)", result)

		got := lines(&out)
		require.Len(t, got, 7)
		h := "-----controller.UserController.UserListAfterReturning()-----"
		assert.Equal(t, []string{
			h,
			IntroducedMessage,
			"advice2",
			h,
			"returnValue=Testing after-returning advice (OK)",
			h,
		}, got[:6])
		assertTook(t, got[6], "UserListAfterReturning")
	})

	t.Run("Throwing operation logs the exception message and still cleans up", func(t *testing.T) {
		var out bytes.Buffer
		proxy := weaveUserController(t, &out)

		_, err := proxy.Invoke(ctx, "UserListAfterCleanUpException")

		require.ErrorIs(t, err, contracts.ErrOperationFailed)
		got := lines(&out)
		require.Len(t, got, 7)
		h := "-----controller.UserController.UserListAfterCleanUpException()-----"
		assert.Equal(t, h, got[3])
		assert.Equal(t, "exception message:Testing after advice to clean up resources (controlled exception)", got[4])
		assert.Equal(t, h, got[5])
		assert.NotContains(t, out.String(), "returnValue=")
		assertTook(t, got[6], "UserListAfterCleanUpException")
	})

	t.Run("Arguments are printed one per line", func(t *testing.T) {
		var out bytes.Buffer
		proxy := weaveUserController(t, &out)
		request := &controller.WebRequest{URI: "/spring16_aop/user_list_before", Client: "127.0.0.1"}

		_, err := proxy.Invoke(ctx, "UserListBefore", language.AmericanEnglish, request)

		require.NoError(t, err)
		got := lines(&out)
		assert.Equal(t, []string{
			"-----controller.UserController.UserListBefore()-----",
			"en-US",
			"WebRequest: uri=/spring16_aop/user_list_before;client=127.0.0.1",
			IntroducedMessage,
			"advice2",
		}, got[:5])
		assert.Equal(t, "returnValue=<nil>", got[6])
	})

	t.Run("Introduced logging runs before the operation body", func(t *testing.T) {
		var out bytes.Buffer
		dispatcher := aop.NewDispatcher().MustRegister(NewControllerAspect(&out, 1))
		target := &sampleController{out: &out}

		proxy, err := dispatcher.Weave(target)
		require.NoError(t, err)
		_, err = proxy.Invoke(ctx, "Run")
		require.NoError(t, err)

		output := out.String()
		assert.Less(t, strings.Index(output, IntroducedMessage), strings.Index(output, "body"))
	})

	t.Run("Ordering aspect runs after the controller aspect", func(t *testing.T) {
		var out bytes.Buffer
		proxy := weaveUserController(t, &out)

		_, err := proxy.Invoke(ctx, "UserListRuntime")

		require.NoError(t, err)
		output := out.String()
		assert.Less(t, strings.Index(output, IntroducedMessage), strings.Index(output, "advice2"))
	})
}

func TestUserListProfiling(t *testing.T) {
	if testing.Short() {
		t.Skip("user_list blocks for 2.5s")
	}

	var out bytes.Buffer
	proxy := weaveUserController(t, &out)

	_, err := proxy.Invoke(context.Background(), "UserList")

	require.NoError(t, err)
	got := lines(&out)
	ms := assertTook(t, got[len(got)-1], "UserList")
	assert.GreaterOrEqual(t, ms, 2500)
	assert.Less(t, ms, int((10 * time.Second).Milliseconds()))
}

type sampleController struct {
	out *bytes.Buffer
}

func (c *sampleController) TypeName() string { return "controller.Sample" }

func (c *sampleController) Operations() []aop.Operation {
	return []aop.Operation{{Name: "Run", Method: func(ctx context.Context, args ...any) (any, error) {
		c.out.WriteString("body\n")
		return nil, nil
	}}}
}
