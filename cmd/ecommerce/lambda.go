package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdaapi "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ecommerce-service/internal/api"
	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/config"
	"github.com/fairyhunter13/ecommerce-service/internal/consumers"
	"github.com/fairyhunter13/ecommerce-service/internal/lambdafn"
	"github.com/fairyhunter13/ecommerce-service/internal/notify"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/orders"
	"github.com/fairyhunter13/ecommerce-service/internal/products"
	"github.com/fairyhunter13/ecommerce-service/internal/stack"
)

// Lambda function names accepted by "ecommerce lambda".
const (
	fnOrders         = "orders"
	fnProductsFetch  = "products-fetch"
	fnProductsAdmin  = "products-admin"
	fnProductEvents  = "product-events"
	fnOrderEvents    = "order-events"
	fnOrderEventsLog = "order-events-log"
	fnOrderEmails    = "order-emails"
)

var lambdaFunctions = []string{
	fnOrders, fnProductsFetch, fnProductsAdmin, fnProductEvents,
	fnOrderEvents, fnOrderEventsLog, fnOrderEmails,
}

func lambdaCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "lambda <function>",
		Short:     "Serve one Lambda function",
		Long:      "Serve one Lambda function: " + strings.Join(lambdaFunctions, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: lambdaFunctions,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := lambdaHandler(cmd.Context(), *cfg, args[0])
			if err != nil {
				return err
			}
			obs.Logger.Info("lambda_starting", "function", args[0])
			awslambda.Start(h)
			return nil
		},
	}
}

// lambdaHandler builds the handler of one function over DynamoDB tables.
// Lambda runs keep no metrics registry.
func lambdaHandler(ctx context.Context, cfg config.Config, name string) (any, error) {
	known := false
	for _, fn := range lambdaFunctions {
		known = known || fn == name
	}
	if !known {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	if name == fnOrders && cfg.OrderEventsTopicARN == "" {
		return nil, errors.New("ORDER_EVENTS_TOPIC_ARN is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	t := stack.DynamoTables(dynamodb.NewFromConfig(awsCfg), cfg)

	switch name {
	case fnOrders:
		topic := bus.NewSNSTopic(sns.NewFromConfig(awsCfg), cfg.OrderEventsTopicARN, nil)
		svc := orders.NewService(orders.NewAssembler(t.Products), t.Orders, topic, nil)
		return lambdafn.APIGateway(api.NewOrderHandler(svc)), nil
	case fnProductsFetch:
		return lambdafn.APIGateway(api.NewProductFetchHandler(products.NewService(t.Products, nil))), nil
	case fnProductsAdmin:
		rec := products.NewLambdaRecorder(lambdaapi.NewFromConfig(awsCfg), cfg.ProductEventsFunction)
		return lambdafn.APIGateway(api.NewProductAdminHandler(products.NewService(t.Products, rec))), nil
	case fnProductEvents:
		return lambdafn.ProductEvents(consumers.NewProductEventRecorder(t.Events, nil)), nil
	case fnOrderEvents:
		return lambdafn.SNS(consumers.NewOrderArchiver(t.Events, nil)), nil
	case fnOrderEventsLog:
		return lambdafn.SNS(consumers.EventLogger{}), nil
	default:
		mailer := notify.NewSESMailer(sesv2.NewFromConfig(awsCfg), cfg.EmailSender)
		return lambdafn.SQS(consumers.NewOrderNotifier(mailer)), nil
	}
}
